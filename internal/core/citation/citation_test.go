package citation

import "testing"

func TestDBStatusFailure(t *testing.T) {
	t.Parallel()

	failures := []DBStatus{DBTimeout, DBError, DBRateLimited}
	for _, s := range failures {
		if !s.Failure() {
			t.Fatalf("%s should count as failure", s)
		}
	}
	settled := []DBStatus{DBMatch, DBNoMatch, DBAuthorMismatch, DBNotRun, DBCancelled}
	for _, s := range settled {
		if s.Failure() {
			t.Fatalf("%s must not count as failure", s)
		}
	}
}

func TestStatsAdd(t *testing.T) {
	t.Parallel()

	var s Stats
	s.Add(ValidationResult{Status: StatusVerified})
	s.Add(ValidationResult{Status: StatusVerified, RetractionInfo: &RetractionInfo{IsRetracted: true}})
	s.Add(ValidationResult{Status: StatusNotFound})
	s.Add(ValidationResult{Status: StatusAuthorMismatch})
	s.Add(ValidationResult{Status: StatusSkipped, SkipReason: SkipURLOnly})

	if s.Total != 5 || s.Verified != 2 || s.NotFound != 1 || s.AuthorMismatch != 1 || s.Skipped != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.Retracted != 1 {
		t.Fatalf("retracted = %d", s.Retracted)
	}
}
