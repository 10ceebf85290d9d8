package lookup

import "testing"

func TestIdentifierValidate(t *testing.T) {
	valid := []Identifier{"1", "12345", "0067890", "9999999999"}
	for _, id := range valid {
		if err := id.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", id, err)
		}
	}

	invalid := []Identifier{"", "bad-code", "12 345", "12345678901", "12a45", "１２３"}
	for _, id := range invalid {
		if err := id.Validate(); err == nil {
			t.Errorf("Validate(%q) = nil, want error", id)
		}
	}
}

func TestKindRetryability(t *testing.T) {
	retryable := []Kind{KindNetwork, KindChallengeTimeout, KindChallengeRejected, KindInteraction, KindParse}
	for _, k := range retryable {
		if f := Failf(k, "x"); !f.Retryable {
			t.Errorf("Failf(%s).Retryable = false, want true", k)
		}
	}

	terminal := []Kind{KindNotFound, KindMalformedInput, KindInfra, KindStoreWrite, KindMail}
	for _, k := range terminal {
		if f := Failf(k, "x"); f.Retryable {
			t.Errorf("Failf(%s).Retryable = true, want false", k)
		}
	}
}

func TestFailureError(t *testing.T) {
	f := Failf(KindNetwork, "dial tcp: %s", "refused")
	if got := f.Error(); got != "network: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}
