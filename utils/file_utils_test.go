package utils

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile(t *testing.T) {
	data := "1.2.3.4\n# office\n2.3.4.5\r\n4.5.6.7\r\n\n\n\n1.1.1.1/24\r\r\r\n"
	f := "/tmp/test_file_" + uuid.NewString()
	err := os.WriteFile(f, []byte(data), 0644)
	require.NoError(t, err)
	defer os.Remove(f)
	members, err := ReadMemberListFromFile(f)
	require.NoError(t, err)
	rs := make([]string, 0, len(members))
	for _, m := range members {
		rs = append(rs, m.String())
	}
	assert.Equal(t, []string{"1.2.3.4/32", "2.3.4.5/32", "4.5.6.7/32", "1.1.1.0/24"}, rs)
}

func TestReadFileInvalid(t *testing.T) {
	f := "/tmp/test_file_" + uuid.NewString()
	err := os.WriteFile(f, []byte("1.2.3.4\nnot-an-ip\n"), 0644)
	require.NoError(t, err)
	defer os.Remove(f)
	_, err = ReadMemberListFromFile(f)
	assert.Error(t, err)

	_, err = ReadMemberListFromFile(f + ".missing")
	assert.Error(t, err)
}

func TestStringSliceDedup(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, StringSliceDedup([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, StringSliceDedup(nil))
}
