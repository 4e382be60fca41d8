package policy

import "testing"

func TestCheck_TooLong(t *testing.T) {
	c, err := Compile(5, nil, nil, false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v := c.Check("123456")
	if v.Allowed || v.Reason != ReasonTooLong {
		t.Fatalf("expected too_long, got %+v", v)
	}
}

func TestCheck_Blocked(t *testing.T) {
	c, err := Compile(0, []string{`rm -rf /`}, nil, false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v := c.Check("rm -rf /")
	if v.Allowed || v.Reason != ReasonBlocked {
		t.Fatalf("expected blocked, got %+v", v)
	}
	if ok := c.Check("ls -la").Allowed; !ok {
		t.Fatalf("expected unrelated command to be allowed")
	}
}

func TestCheck_AllowlistInertWhenNotRequired(t *testing.T) {
	c, err := Compile(0, nil, []string{`^ls`}, false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Open-question resolution: allowed_patterns does nothing unless
	// require_allowlist is true.
	v := c.Check("echo hi")
	if !v.Allowed {
		t.Fatalf("expected allowlist to be inert, got %+v", v)
	}
}

func TestCheck_AllowlistEnforcedWhenRequired(t *testing.T) {
	c, err := Compile(0, nil, []string{`^ls`}, true)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if v := c.Check("ls -la"); !v.Allowed {
		t.Fatalf("expected ls to be allowlisted, got %+v", v)
	}
	v := c.Check("echo hi")
	if v.Allowed || v.Reason != ReasonNotAllowlisted {
		t.Fatalf("expected not_allowlisted, got %+v", v)
	}
}

func TestCheck_Deterministic(t *testing.T) {
	c, err := Compile(100, []string{"rm -rf /"}, nil, false)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	first := c.Check("rm -rf /tmp")
	second := c.Check("rm -rf /tmp")
	if first != second {
		t.Fatalf("Check is not deterministic: %+v vs %+v", first, second)
	}
}
