package merge_test

import (
	"testing"

	"github.com/bobboyms/git-storage/pkg/merge"
	"github.com/bobboyms/git-storage/pkg/record"
)

func rec(id string, updatedAt int64) *record.Record {
	return &record.Record{ID: id, Key: "k", UpdatedAt: updatedAt, CreatedAt: updatedAt}
}

func TestLWW_AbsentCases(t *testing.T) {
	if got := merge.LWW(nil, nil); got != nil {
		t.Fatalf("expected nil when both absent, got %+v", got)
	}
	r := rec("a", 1)
	if got := merge.LWW(r, nil); got != r {
		t.Fatalf("expected local to win when remote absent")
	}
	if got := merge.LWW(nil, r); got != r {
		t.Fatalf("expected remote to win when local absent")
	}
}

func TestLWW_NewerWins(t *testing.T) {
	local := rec("a", 100)
	remote := rec("b", 200)
	if got := merge.LWW(local, remote); got != remote {
		t.Fatalf("expected strictly newer remote to win")
	}
}

func TestLWW_TieBreaksOnID(t *testing.T) {
	local := rec("aaa", 100)
	remote := rec("bbb", 100)
	if got := merge.LWW(local, remote); got != remote {
		t.Fatalf("expected lexicographically greater id to win on tie")
	}
	if got := merge.LWW(remote, local); got != remote {
		t.Fatalf("expected result independent of argument order on tie")
	}
}

func TestLWW_Idempotent(t *testing.T) {
	local := rec("aaa", 100)
	remote := rec("bbb", 200)
	first := merge.LWW(local, remote)
	second := merge.LWW(first, remote)
	if first != second {
		t.Fatalf("merge(merge(l,r), r) must equal merge(l,r)")
	}
}
