package match

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voicebridge/leadlink/internal/config"
	"github.com/voicebridge/leadlink/internal/model"
	"github.com/voicebridge/leadlink/internal/resilience"
	"github.com/voicebridge/leadlink/internal/store"
	"github.com/voicebridge/leadlink/internal/transcript"
	"github.com/voicebridge/leadlink/pkg/voiceapi"
)

// Linker runs the full matching pipeline for one lead: fetch the candidate
// window, extract tool-call payloads, score, rank, and persist the winner.
type Linker struct {
	voice    voiceapi.Client
	store    store.Store
	scorer   *Scorer
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	pageSize int
	minScore int
}

// NewLinker wires a Linker from the voice client, the store, and matcher
// configuration. Zero config values fall back to the package defaults.
func NewLinker(voice voiceapi.Client, st store.Store, cfg config.MatchConfig) *Linker {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	delay := time.Duration(cfg.DetailDelayMillis) * time.Millisecond
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	// One breaker for the whole voice API: list and detail calls hit the
	// same upstream, so failures on either count toward the same trip.
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("match: voice api circuit state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return &Linker{
		voice:    voice,
		store:    st,
		scorer:   NewScorer(time.Duration(cfg.WindowMinutes) * time.Minute),
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
		breaker:  breaker,
		pageSize: pageSize,
		minScore: cfg.MinScore,
	}
}

// FindMatch scans the candidate window and returns the ranked outcome
// without writing anything. A no-match result has Matched=false and is not
// an error.
func (l *Linker) FindMatch(ctx context.Context, lead model.Lead) (*model.LinkResult, error) {
	res, _, err := l.scan(ctx, lead)
	return res, err
}

// Link runs FindMatch and, on a match, persists the conversation row and
// the lead's foreign key. It does not guard against an already-linked lead;
// call sites check Lead.Linked() first.
func (l *Linker) Link(ctx context.Context, lead model.Lead) (*model.LinkResult, error) {
	res, statuses, err := l.scan(ctx, lead)
	if err != nil {
		return nil, err
	}
	if !res.Matched {
		zap.L().Info("match: no conversation found for lead",
			zap.String("lead_id", lead.ID),
			zap.Int("examined", res.SearchCriteria.Examined),
			zap.Int("candidates", len(res.Candidates)),
		)
		return res, nil
	}

	status := model.StatusFromRemote(statuses[res.ConversationID])
	rec, err := l.store.LookupOrCreateConversation(ctx, res.ConversationID, status)
	if err != nil {
		return nil, eris.Wrapf(err, "match: persist conversation %s", res.ConversationID)
	}
	if err := l.store.LinkLead(ctx, lead.ID, rec.ID); err != nil {
		return nil, eris.Wrapf(err, "match: link lead %s", lead.ID)
	}

	zap.L().Info("match: lead linked",
		zap.String("lead_id", lead.ID),
		zap.String("conversation_id", res.ConversationID),
		zap.Int("score", res.Score),
	)
	return res, nil
}

// scan fetches the candidate window sequentially (throttled) and scores
// every lead-submission payload it finds. It also returns the remote status
// of each scored conversation, which Link needs when creating the local row.
func (l *Linker) scan(ctx context.Context, lead model.Lead) (*model.LinkResult, map[string]string, error) {
	list, err := resilience.ExecuteVal(ctx, l.breaker, func(ctx context.Context) (*voiceapi.ListResponse, error) {
		return l.voice.ListConversations(ctx, voiceapi.WithPageSize(l.pageSize))
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "match: list conversations")
	}

	res := &model.LinkResult{
		LeadID: lead.ID,
		SearchCriteria: model.SearchCriteria{
			Name:       lead.ContactName,
			Phone:      lead.ContactPhone,
			CreatedAt:  lead.CreatedAt,
			WindowMins: int(l.scorer.Window() / time.Minute),
			Examined:   len(list.Conversations),
		},
	}

	var cands []model.MatchCandidate
	statuses := make(map[string]string)

	for _, summary := range list.Conversations {
		offset, ok := l.scorer.TimeOffset(lead.CreatedAt, summary.StartTime)
		if !ok {
			// Outside the window: excluded before any scoring happens.
			continue
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return nil, nil, eris.Wrap(err, "match: throttle wait")
		}
		conv, err := resilience.ExecuteVal(ctx, l.breaker, func(ctx context.Context) (*voiceapi.Conversation, error) {
			return l.voice.GetConversation(ctx, summary.ConversationID)
		})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "match: fetch conversation %s", summary.ConversationID)
		}

		best, found := l.bestPayload(lead, conv)
		if !found {
			continue
		}
		statuses[conv.ConversationID] = conv.Status
		cands = append(cands, model.MatchCandidate{
			ConversationID:    conv.ConversationID,
			Score:             best.score,
			TimeOffsetMinutes: offset,
			Payload:           best.payload,
		})
	}

	res.Candidates = Rank(cands)
	if winner := SelectBest(cands, l.minScore); winner != nil {
		res.Matched = true
		res.ConversationID = winner.ConversationID
		res.Score = winner.Score
	}
	return res, statuses, nil
}

type scoredPayload struct {
	score   int
	payload model.LeadPayload
}

// bestPayload scores every lead-submission payload in one conversation and
// keeps the highest. found is false when the transcript carries no
// lead-submission tool calls at all.
func (l *Linker) bestPayload(lead model.Lead, conv *voiceapi.Conversation) (scoredPayload, bool) {
	extractions := transcript.ExtractLeadPayloads(conv)
	if len(extractions) == 0 {
		return scoredPayload{}, false
	}

	best := scoredPayload{score: -1}
	for _, ex := range extractions {
		if s := l.scorer.Score(lead, ex.Payload); s > best.score {
			best = scoredPayload{score: s, payload: ex.Payload}
		}
	}
	return best, true
}
