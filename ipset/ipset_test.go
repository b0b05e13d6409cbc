package ipset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ip-setkeeper/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeListXML = `<ipsets>
<ipset name="web-tier">
<type>hash:net</type>
<header><family>inet</family><references>1</references><numentries>2</numentries></header>
<members>
<member><elem>10.0.0.0/24</elem></member>
<member><elem>10.0.1.5</elem></member>
</members>
</ipset>
</ipsets>`

const fakeScript = `#!/bin/sh
echo "$*" >> "$FAKE_IPSET_LOG"
case "$1" in
version)
	echo "ipset v7.15, protocol version: 7"
	;;
list)
	if [ "$2" = "-name" ]; then
		printf 'web-tier\nother\n'
		exit 0
	fi
	if [ "$2" = "missing" ]; then
		echo "ipset v7.15: The set with the given name does not exist" >&2
		exit 1
	fi
	cat "$FAKE_IPSET_XML"
	;;
add)
	if [ "$3" = "1.1.1.1/32" ]; then
		echo "ipset v7.15: Element cannot be added to the set: it's already added" >&2
		exit 1
	fi
	;;
esac
exit 0
`

func setupFake(t *testing.T) (string, string) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "ipset")
	require.NoError(t, os.WriteFile(bin, []byte(fakeScript), 0755))
	xmlFile := filepath.Join(dir, "list.xml")
	require.NoError(t, os.WriteFile(xmlFile, []byte(fakeListXML), 0644))
	logFile := filepath.Join(dir, "calls.log")
	t.Setenv("FAKE_IPSET_LOG", logFile)
	t.Setenv("FAKE_IPSET_XML", xmlFile)
	return bin, logFile
}

func readCalls(t *testing.T, f string) []string {
	raw, err := os.ReadFile(f)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestNewPrefix(t *testing.T) {
	bin, _ := setupFake(t)
	{
		set, err := New(bin)
		require.NoError(t, err)
		assert.Equal(t, bin, set.path)
		assert.Empty(t, set.args)
	}
	{
		set, err := New("/bin/sh " + bin)
		require.NoError(t, err)
		assert.Equal(t, []string{bin}, set.args)
	}
	{
		set, err := New("/bin/sh")
		require.NoError(t, err)
		assert.Equal(t, []string{"ipset"}, set.args)
	}
	_, err := New("command-that-does-not-exist-" + filepath.Base(bin))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	bin, _ := setupFake(t)
	set := MustNew(bin)
	v1, v2, err := set.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v7.15", v1)
	assert.Equal(t, "7", v2)
}

func TestBackendCommands(t *testing.T) {
	bin, logFile := setupFake(t)
	set := MustNew("/bin/sh " + bin)
	ctx := context.Background()
	m, err := model.ParseMember("10.0.1.5")
	require.NoError(t, err)

	assert.NoError(t, set.CreateSet(ctx, "web-tier"))
	assert.NoError(t, set.AddMember(ctx, "web-tier", m))
	assert.NoError(t, set.DelMember(ctx, "web-tier", m))
	assert.NoError(t, set.DestroySet(ctx, "web-tier"))
	err = set.AddMember(ctx, "web-tier", model.NewMember(0x01010101, 32))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already added")

	assert.Equal(t, []string{
		"create web-tier hash:net family inet -exist",
		"add web-tier 10.0.1.5/32",
		"del web-tier 10.0.1.5/32",
		"destroy web-tier",
		"add web-tier 1.1.1.1/32",
	}, readCalls(t, logFile))
}

func TestListSets(t *testing.T) {
	bin, _ := setupFake(t)
	set := MustNew(bin)
	names, err := set.ListSets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"web-tier", "other"}, names)
}

func TestListMembers(t *testing.T) {
	bin, _ := setupFake(t)
	set := MustNew(bin)
	ctx := context.Background()
	{
		members, ok, err := set.ListMembers(ctx, "web-tier")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"10.0.0.0/24", "10.0.1.5/32"}, []string{members[0].String(), members[1].String()})
	}
	{
		members, ok, err := set.ListMembers(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, members)
	}
	{
		_, _, err := set.ListMembers(ctx, "other")
		assert.Error(t, err)
	}
}

func TestParseListXML(t *testing.T) {
	members, err := parseListXML("web-tier", []byte(fakeListXML))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = parseListXML("web-tier", []byte("<ipsets><ipset"))
	assert.Error(t, err)
	_, err = parseListXML("web-tier", []byte(`<ipsets><ipset name="web-tier"><members><member><elem>x</elem></member></members></ipset></ipsets>`))
	assert.Error(t, err)
}

func TestParseNameList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseNameList([]byte("a\n\n  b \n")))
	assert.Empty(t, parseNameList(nil))
}
