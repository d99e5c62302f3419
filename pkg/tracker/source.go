package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vodkeep/vodsync/internal/model"
	"github.com/vodkeep/vodsync/internal/resilience"
)

// defaultMatchLength stands in for matches whose payload omits a duration.
const defaultMatchLength = 40 * time.Minute

// Source adapts the tracker API to the correlator's history interface.
// Page fetches go through a retry policy and a shared circuit breaker so
// one flapping upstream does not hammer every candidate in a run.
type Source struct {
	client   Client
	account  Account
	pageSize int
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewSource creates a history source backed by the given client.
func NewSource(client Client, account Account, pageSize int, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Source {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Source{
		client:   client,
		account:  account,
		pageSize: pageSize,
		retry:    retry,
		breaker:  breaker,
	}
}

// FetchMatches returns one page of match records, newest first, and whether
// older pages may still contain matches starting after from.
func (s *Source) FetchMatches(ctx context.Context, from, _ time.Time, page int) ([]model.MatchRecord, bool, error) {
	mp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*MatchPage, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*MatchPage, error) {
			return s.client.Matches(ctx, page, s.pageSize)
		})
	})
	if err != nil {
		return nil, false, err
	}

	records := make([]model.MatchRecord, 0, len(mp.Matches))
	for _, m := range mp.Matches {
		records = append(records, toRecord(m))
	}

	// The list is newest first. Once the oldest entry on the page starts
	// before the window, no older page can overlap it either.
	more := mp.After > 0 && len(records) > 0 &&
		records[len(records)-1].StartedAt.After(from)

	return records, more, nil
}

// Enrich fills in the player's rank at match time from the match detail.
// The record is returned unchanged when the lookup fails; rank is cosmetic
// and must not fail an upload.
func (s *Source) Enrich(ctx context.Context, rec model.MatchRecord) model.MatchRecord {
	detail, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*MatchDetail, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*MatchDetail, error) {
			return s.client.Match(ctx, rec.ID)
		})
	})
	if err != nil {
		zap.L().Warn("rank lookup failed",
			zap.String("match_id", rec.ID),
			zap.Error(err))
		return rec
	}

	for _, p := range detail.Players {
		if strings.EqualFold(p.Name, s.account.Name) && strings.EqualFold(p.Tag, s.account.Tag) {
			rec.Rank = p.Rank
			return rec
		}
	}
	zap.L().Warn("player not found in match detail",
		zap.String("match_id", rec.ID),
		zap.String("player", s.account.Name+"#"+s.account.Tag))
	return rec
}

// toRecord converts a wire match into the domain record, deriving the
// result and score from the perspective of the player's team.
func toRecord(m Match) model.MatchRecord {
	length := defaultMatchLength
	if m.Meta.GameLengthMS > 0 {
		length = time.Duration(m.Meta.GameLengthMS) * time.Millisecond
	}

	mine, theirs := m.Teams.Red, m.Teams.Blue
	if strings.EqualFold(m.Stats.Team, "Blue") {
		mine, theirs = m.Teams.Blue, m.Teams.Red
	}

	result := model.ResultDraw
	switch {
	case mine > theirs:
		result = model.ResultWin
	case mine < theirs:
		result = model.ResultLoss
	}

	started := m.Meta.StartedAt.UTC()
	return model.MatchRecord{
		ID:        m.Meta.ID,
		StartedAt: started,
		EndedAt:   started.Add(length),
		Map:       m.Meta.Map.Name,
		Agent:     m.Stats.Character.Name,
		Mode:      m.Meta.Mode,
		Result:    result,
		Score:     fmt.Sprintf("%d-%d", mine, theirs),
	}
}
