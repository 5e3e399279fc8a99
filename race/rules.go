package race

// Rule checks, evaluated independently. A rule whose inputs are missing does
// not fire.

func checkLostUpdate(rec *AnomalyRecord) {
	s := rec.Session
	if !s.HasExpected || !s.CountsKnown {
		return
	}
	expected := min(s.ExpectedOccupancy, s.CapacityMax)
	if s.OccupancyCurr == expected {
		return
	}
	rec.Labels = append(rec.Labels, LabelLostUpdate)
	rec.LostUpdateExpected = expected
	rec.LostUpdateActual = s.OccupancyCurr
	rec.LostUpdateDiff = s.OccupancyCurr - expected
}

func checkContention(rec *AnomalyRecord, label string, members []string) {
	if rec.ContentionGroupSize < 2 {
		return
	}
	rec.Labels = append(rec.Labels, label)
	rec.ContentionUserIDs = members
	rec.InterveningUsers = members[1:]
	rec.InterveningUserCount = len(members) - 1
}

func checkCapacity(rec *AnomalyRecord, strict bool) {
	s := rec.Session
	if !s.CountsKnown {
		return
	}
	if s.OccupancyCurr <= s.CapacityMax {
		return
	}
	if strict && s.OccupancyPrev > s.CapacityMax {
		return
	}
	rec.Labels = append(rec.Labels, LabelCapacityExceeded)
	rec.OverCapacityAmount = s.OccupancyCurr - s.CapacityMax
	rec.OverCapacityCurr = s.OccupancyCurr
	rec.OverCapacityMax = s.CapacityMax
}

func checkStateTransition(rec *AnomalyRecord, initial int) {
	s := rec.Session
	if s.Outcome != OutcomeSuccess || !s.CountsKnown || s.Sequence < 1 {
		return
	}
	expected := initial + s.Sequence
	if s.OccupancyCurr == expected {
		return
	}
	rec.Labels = append(rec.Labels, LabelStateTransition)
	rec.ExpectedCurrBySequence = expected
	rec.ActualCurrPeople = s.OccupancyCurr
	rec.CurrSequenceDiff = s.OccupancyCurr - expected
	rec.SortedSequencePosition = s.Sequence
}

// Evaluate applies the technique's rules to one session. members lists the
// user ids of the session's overlap set, the session's own user first.
func Evaluate(s Session, members []string, rules RuleProfile) AnomalyRecord {
	rec := AnomalyRecord{Session: s, ContentionGroupSize: len(members)}
	if rec.ContentionGroupSize < 1 {
		rec.ContentionGroupSize = 1
	}
	if d, ok := s.CriticalSectionNanos(); ok {
		rec.CriticalSectionNanos = d
	}

	if rules.LostUpdate {
		checkLostUpdate(&rec)
	}
	if rules.Contention {
		checkContention(&rec, rules.ContentionLabel(), members)
	}
	if rules.CapacityExceeded {
		checkCapacity(&rec, rules.StrictCapacity)
	}
	if rules.StateTransition {
		checkStateTransition(&rec, rules.Initial())
	}
	return rec
}
