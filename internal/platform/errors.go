package platform

import "errors"

var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrMemberNotFound    = errors.New("member not found")
	ErrGuildUnresolvable = errors.New("guild unresolvable for channel")
)
