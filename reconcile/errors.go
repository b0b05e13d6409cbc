package reconcile

import (
	"fmt"

	"ip-setkeeper/errs"
	"ip-setkeeper/model"
)

type Op string

const (
	OpCreateSet   Op = "create-set"
	OpDestroySet  Op = "destroy-set"
	OpAddMember   Op = "add-member"
	OpDelMember   Op = "delete-member"
	OpListSets    Op = "list-sets"
	OpListMembers Op = "list-members"
)

// BackendCommandError records one failed backend invocation of a pass.
type BackendCommandError struct {
	Op     Op
	Set    string
	Member *model.Member
	Cause  error
}

func (e *BackendCommandError) Target() string {
	if e.Member != nil {
		return e.Set + " " + e.Member.String()
	}
	return e.Set
}

func (e *BackendCommandError) Error() string {
	return fmt.Sprintf("[%s] %s %s failed: %v", errs.CodeBackendCommand, e.Op, e.Target(), e.Cause)
}

func (e *BackendCommandError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, errs.ErrBackendCommand) match.
func (e *BackendCommandError) Is(target error) bool {
	t, ok := target.(*errs.Error)
	return ok && t.Code == errs.CodeBackendCommand
}
