package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := Rejected("command", "update", errors.New("validation failed"))
	err := fmt.Errorf("update vs 42: %w", base)
	if !IsRejected(err) {
		t.Fatalf("kind=%s want rejected", KindOf(err))
	}
	if IsUnauthorized(err) || IsTransport(err) {
		t.Fatalf("unexpected kind match for %v", err)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain error should be unknown")
	}
}

func TestError_Message(t *testing.T) {
	err := Unauthorized("zabbix", "user.login", errors.New("bad password"))
	if got := err.Error(); got != "zabbix user.login: unauthorized: bad password" {
		t.Fatalf("msg=%q", got)
	}
}
