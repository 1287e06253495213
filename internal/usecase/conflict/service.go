// Package conflict cross-references numeric claims across documents.
// Chunks sharing a topic key are compared pairwise; values that
// disagree beyond unit tolerance, directly or after unit conversion,
// become pending conflict records.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"go.uber.org/zap"

	"github.com/divekit/manualindex/internal/domain"
	"github.com/divekit/manualindex/internal/domain/topic"
	"github.com/divekit/manualindex/internal/domain/units"
	"github.com/divekit/manualindex/internal/metrics"
)

// Service runs conflict detection and the resolution workflow.
type Service struct {
	chunks      ChunkStore
	docs        DocumentStore
	store       Store
	ledger      Ledger
	tolerances  map[string]float64
	conversions map[units.ConversionKey]float64
	logger      *zap.Logger
}

// Config carries the comparison tables. Nil maps fall back to the
// built-in defaults.
type Config struct {
	Tolerances  map[string]float64
	Conversions map[units.ConversionKey]float64
	Logger      *zap.Logger
}

// New creates the conflict service.
func New(chunks ChunkStore, docs DocumentStore, store Store, ledger Ledger, cfg Config) *Service {
	if cfg.Tolerances == nil {
		cfg.Tolerances = units.DefaultTolerances()
	}
	if cfg.Conversions == nil {
		cfg.Conversions = units.DefaultConversions()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		chunks:      chunks,
		docs:        docs,
		store:       store,
		ledger:      ledger,
		tolerances:  cfg.Tolerances,
		conversions: cfg.Conversions,
		logger:      cfg.Logger,
	}
}

// ScanResult summarizes one detection pass.
type ScanResult struct {
	ChunksScanned int
	PairsCompared int
	Created       int
	AlreadyKnown  int
}

// Detect scans unit-bearing chunks, optionally restricted to one topic
// key, and records every cross-document disagreement. Re-running a
// scan never duplicates or reopens conflicts. Unclassified chunks are
// never compared.
func (s *Service) Detect(ctx context.Context, topicKey, actor string) (*ScanResult, error) {
	if topicKey == topic.Unclassified {
		return nil, fmt.Errorf("cannot scan the unclassified topic: %w", domain.ErrInvalidArgument)
	}
	if actor == "" {
		actor = "system"
	}

	chunks, err := s.chunks.ListUnitBearing(ctx, topicKey)
	if err != nil {
		return nil, fmt.Errorf("listing unit-bearing chunks: %w", err)
	}

	// A chunk whose document has disappeared is a consistency error:
	// it is skipped and ledgered, and the scan continues.
	docKnown := make(map[string]bool)
	valid := chunks[:0]
	for _, c := range chunks {
		known, checked := docKnown[c.Document]
		if !checked {
			switch _, err := s.docs.Get(ctx, c.Document); {
			case err == nil:
				known = true
			case errors.Is(err, domain.ErrDocumentNotFound):
				known = false
			default:
				return nil, fmt.Errorf("checking document %q: %w", c.Document, err)
			}
			docKnown[c.Document] = known
		}
		if !known {
			s.consistencySkip(ctx, actor,
				fmt.Errorf("chunk %d references missing document %q: %w", c.ID, c.Document, domain.ErrConsistency))
			continue
		}
		valid = append(valid, c)
	}
	chunks = valid

	byTopic := make(map[string][]domain.Chunk)
	for _, c := range chunks {
		byTopic[c.TopicKey] = append(byTopic[c.TopicKey], c)
	}

	res := &ScanResult{ChunksScanned: len(chunks)}
	for _, group := range byTopic {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("scan cancelled: %w", err)
				}
				a, b := group[i], group[j]
				if a.Document == b.Document {
					continue
				}
				res.PairsCompared++
				if err := s.comparePair(ctx, actor, a, b, res); err != nil {
					return nil, err
				}
			}
		}
	}

	metrics.ConflictScansTotal.Inc()
	s.logger.Info("conflict scan finished",
		zap.String("topic", topicKey),
		zap.Int("chunks", res.ChunksScanned),
		zap.Int("pairs", res.PairsCompared),
		zap.Int("created", res.Created))
	return res, nil
}

// comparePair checks every mention combination of two chunks. The
// lower chunk id is always side A so re-scans produce the same keys.
func (s *Service) comparePair(ctx context.Context, actor string, a, b domain.Chunk, res *ScanResult) error {
	if a.ID > b.ID {
		a, b = b, a
	}

	for _, ma := range a.Units {
		for _, mb := range b.Units {
			kind, detail, ok := s.compareMentions(ma, mb)
			if !ok {
				continue
			}
			c := domain.Conflict{
				Key:      conflictKey(a.ID, b.ID, ma, mb),
				ChunkA:   a.ID,
				ChunkB:   b.ID,
				TopicKey: a.TopicKey,
				Kind:     kind,
				Detail:   detail,
				ContextA: ma.Context,
				ContextB: mb.Context,
			}
			created, err := s.store.Upsert(ctx, c)
			if err != nil {
				return fmt.Errorf("recording conflict: %w", err)
			}
			if created {
				res.Created++
				metrics.ConflictsDetectedTotal.WithLabelValues(string(kind)).Inc()
				if err := s.ledger.Append(ctx, actor, domain.ActionConflictDetected,
					fmt.Sprintf("%s: %s (chunks %d/%d)", c.TopicKey, detail, a.ID, b.ID)); err != nil {
					s.logger.Warn("appending ledger entry", zap.Error(err))
				}
			} else {
				res.AlreadyKnown++
			}
		}
	}
	return nil
}

// compareMentions decides whether two mentions disagree. Same-unit
// values are compared against the unit's tolerance; different units
// are compared after conversion, and values that agree once converted
// are not a conflict. Units without a conversion between them measure
// different quantities and are never compared.
func (s *Service) compareMentions(a, b domain.UnitMention) (domain.ConflictKind, string, bool) {
	if a.Unit == b.Unit {
		tol := s.tolerances[a.Unit]
		if math.Abs(a.Value-b.Value) > tol {
			return domain.ConflictNumeric,
				fmt.Sprintf("%g %s vs %g %s", a.Value, a.Unit, b.Value, b.Unit), true
		}
		return "", "", false
	}

	converted, ok := units.Convert(a.Value, a.Unit, b.Unit, s.conversions)
	if !ok {
		return "", "", false
	}
	tol := s.tolerances[b.Unit]
	if math.Abs(converted-b.Value) > tol {
		return domain.ConflictUnitMismatch,
			fmt.Sprintf("%g %s (= %.4g %s) vs %g %s", a.Value, a.Unit, converted, b.Unit, b.Value, b.Unit), true
	}
	return "", "", false
}

// Resolve moves a pending conflict to a terminal status and records
// the decision in the ledger.
func (s *Service) Resolve(ctx context.Context, key, status, resolvedBy, notes string) error {
	if key == "" {
		return fmt.Errorf("conflict key is empty: %w", domain.ErrInvalidArgument)
	}
	if resolvedBy == "" {
		return fmt.Errorf("resolved_by is required: %w", domain.ErrInvalidArgument)
	}
	st, ok := domain.ParseTerminalStatus(status)
	if !ok {
		return fmt.Errorf("invalid resolution status %q: %w", status, domain.ErrInvalidArgument)
	}

	if err := s.store.Resolve(ctx, key, st, resolvedBy, notes); err != nil {
		return err
	}
	if err := s.ledger.Append(ctx, resolvedBy, domain.ActionConflictResolved,
		fmt.Sprintf("%s -> %s", key, st)); err != nil {
		s.logger.Warn("appending ledger entry", zap.Error(err))
	}
	return nil
}

// Get retrieves one conflict.
func (s *Service) Get(ctx context.Context, key string) (*domain.Conflict, error) {
	return s.store.Get(ctx, key)
}

// List returns conflicts filtered by status and topic key.
func (s *Service) List(ctx context.Context, status, topicKey string) ([]domain.Conflict, error) {
	var st domain.ConflictStatus
	if status != "" {
		switch domain.ConflictStatus(status) {
		case domain.StatusPending, domain.StatusResolved, domain.StatusDeferred, domain.StatusDismissed:
			st = domain.ConflictStatus(status)
		default:
			return nil, fmt.Errorf("invalid status filter %q: %w", status, domain.ErrInvalidArgument)
		}
	}
	return s.store.List(ctx, st, topicKey)
}

func (s *Service) consistencySkip(ctx context.Context, actor string, cause error) {
	s.logger.Warn("consistency error during scan", zap.Error(cause))
	if err := s.ledger.Append(ctx, actor, domain.ActionChunkSkipped, cause.Error()); err != nil {
		s.logger.Warn("appending ledger entry", zap.Error(err))
	}
}

// conflictKey derives a stable identity from the ordered chunk pair
// and the exact values and units involved, so the same disagreement
// rediscovered later maps onto the same record.
func conflictKey(chunkA, chunkB int64, a, b domain.UnitMention) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%g|%s|%g|%s", chunkA, chunkB, a.Value, a.Unit, b.Value, b.Unit)
	return fmt.Sprintf("%016x", h.Sum64())
}
