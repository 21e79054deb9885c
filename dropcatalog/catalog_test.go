package dropcatalog

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/openhsflow/hsflowd/sflowio"
)

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(testDiscard{})
	return log
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestLookupExactSymbol(t *testing.T) {
	tc := NewTwoCatalogs(true, true)
	Load(discardLogger(), tc.SW, DefaultSW)

	dp, ok := tc.LookupSW("kfree_skb_reason")
	if !ok {
		t.Fatalf("expected exact match for kfree_skb_reason")
	}
	if dp.Reason != ReasonUnknown {
		t.Errorf("reason = %v, want ReasonUnknown", dp.Reason)
	}
}

func TestPatternMaterializesExactEntry(t *testing.T) {
	cat := NewCatalog()
	cat.Add(DropPoint{Symbol: "tcp_v?_rcv*", IsPattern: true, Reason: ReasonTCPInvalidSeq})

	dp1, ok := cat.Lookup("tcp_v4_rcv_bad")
	if !ok || dp1.Reason != ReasonTCPInvalidSeq {
		t.Fatalf("first lookup: got %+v, ok=%v", dp1, ok)
	}

	if _, exact := cat.exact["tcp_v4_rcv_bad"]; !exact {
		t.Fatalf("expected pattern hit to materialize an exact entry")
	}

	dp2, ok := cat.Lookup("tcp_v4_rcv_bad")
	if !ok || dp2 != dp1 {
		t.Fatalf("second lookup should return the same, now-exact, entry")
	}
}

func TestEmptyReasonMeansIgnored(t *testing.T) {
	cat := NewCatalog()
	Load(discardLogger(), cat, []LoaderEntry{{Op: "==", Symbol: "__kfree_skb", Reason: ""}})

	dp, ok := cat.Lookup("__kfree_skb")
	if !ok {
		t.Fatalf("expected the entry to load and match")
	}
	if dp.Reason != sflowio.None {
		t.Errorf("reason = %v, want sflowio.None", dp.Reason)
	}
}

func TestUnknownOperatorSkipped(t *testing.T) {
	cat := NewCatalog()
	Load(discardLogger(), cat, []LoaderEntry{{Op: "~=", Symbol: "foo", Reason: "unknown"}})

	if _, ok := cat.Lookup("foo"); ok {
		t.Fatalf("entry with unknown operator should have been skipped")
	}
}

func TestUnresolvedReasonSkipped(t *testing.T) {
	cat := NewCatalog()
	Load(discardLogger(), cat, []LoaderEntry{{Op: "==", Symbol: "foo", Reason: "no_such_reason"}})

	if _, ok := cat.Lookup("foo"); ok {
		t.Fatalf("entry with unresolved reason should have been skipped")
	}
}

func TestHWGroupFallback(t *testing.T) {
	tc := NewTwoCatalogs(true, true)
	tc.HW.Add(DropPoint{Symbol: "some-group", Reason: ReasonACLDeny})

	dp, ok := tc.LookupHW("some-group", "some-specific-trap")
	if !ok || dp.Reason != ReasonACLDeny {
		t.Fatalf("expected fallback to group-only entry, got %+v ok=%v", dp, ok)
	}
}

func TestPolicyGateIncrementsIgnoredCounter(t *testing.T) {
	tc := NewTwoCatalogs(false, false)
	Load(discardLogger(), tc.SW, DefaultSW)

	if _, ok := tc.LookupSW("kfree_skb_reason"); ok {
		t.Fatalf("sw lookups should be disabled")
	}
	if tc.IgnoredSW != 1 {
		t.Errorf("IgnoredSW = %d, want 1", tc.IgnoredSW)
	}
}
