package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/types"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/assembler"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/classifier"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/lawapi"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/processor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type PipelineConfig struct {
	TopK              int
	ResultCap         int
	Budget            int
	MaxSearchKeywords int
	SourceTypes       []string

	Classifier *classifier.Classifier
	// Legal and Semantic are optional; a nil source contributes nothing.
	Legal     types.LegalSearcher
	Semantic  types.SemanticSearcher
	Processor *processor.Processor
	Assembler *assembler.Assembler
	Events    types.EventSink
	Logger    logrus.FieldLogger
}

// Pipeline grounds one query at a time: classify, query both sources
// concurrently, filter, then assemble. It keeps no state between calls.
type Pipeline struct {
	config PipelineConfig
	log    logrus.FieldLogger
}

func NewWithConfig(config PipelineConfig) (*Pipeline, error) {
	if config.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.ResultCap == 0 {
		config.ResultCap = 5
	}
	if config.Budget == 0 {
		config.Budget = 6000
	}
	if config.MaxSearchKeywords == 0 {
		config.MaxSearchKeywords = 1
	}
	if len(config.SourceTypes) == 0 {
		config.SourceTypes = []string{models.SourceTypePrecedent}
	}
	if config.Assembler == nil {
		config.Assembler = assembler.NewWithConfig(assembler.AssemblerConfig{})
	}
	if config.Processor == nil {
		pr := processor.NewWithConfig(processor.ProcessorConfig{})
		config.Processor = &pr
	}

	return &Pipeline{
		config: config,
		log:    logger.OrStandard(config.Logger),
	}, nil
}

type externalResult struct {
	items    []models.RetrievedItem
	refs     int
	fetched  int
	dropped  int
	err      error
	duration time.Duration
}

type internalResult struct {
	items    []models.RetrievedItem
	err      error
	duration time.Duration
}

// Retrieve returns the grounding context for query. Source failures only
// shrink the result; with both sources down the bundle is empty and the
// error is nil. The only error is the caller's own cancellation arriving
// before assembly.
func (p *Pipeline) Retrieve(ctx context.Context, query models.Query) (models.ContextBundle, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := p.log.WithField("request_id", requestID)

	cls := p.config.Classifier.Classify(query.Text)
	keywords := classifier.SearchKeywords(cls, query.Text, p.config.MaxSearchKeywords)
	if cls.Empty() {
		log.Debug("Query matched no domain, searching with raw text")
	} else {
		log.WithFields(logrus.Fields{
			"domains":  cls.DomainTags,
			"keywords": keywords,
		}).Debug("Query classified")
	}

	var ext externalResult
	var in internalResult

	// Neither branch returns an error to the group so that one failing
	// source never cancels the other.
	var g errgroup.Group
	g.Go(func() error {
		t := time.Now()
		ext = p.external(ctx, cls, keywords)
		ext.duration = time.Since(t)
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		in = p.internal(ctx, query.Text)
		in.duration = time.Since(t)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.ContextBundle{}, err
	}

	p.logBranchError(log, "external", ext.err)
	p.logBranchError(log, "internal", in.err)

	bundle := p.config.Assembler.Assemble(cls, ext.items, in.items, p.config.Budget)

	if p.config.Events != nil {
		ev := models.RetrievalEvent{
			RequestID:        requestID,
			SessionID:        query.SessionID,
			DomainTags:       cls.DomainTags,
			SearchKeywords:   keywords,
			ExternalRefs:     ext.refs,
			ExternalFetched:  ext.fetched,
			ExternalDropped:  ext.dropped,
			ExternalRelevant: len(ext.items),
			InternalHits:     len(in.items),
			Citations:        len(bundle.Citations),
			PromptRunes:      utf8.RuneCountInString(bundle.PromptText),
			ExternalDuration: ext.duration,
			InternalDuration: in.duration,
			TotalDuration:    time.Since(start),
			CompletedAt:      time.Now(),
		}
		if ext.err != nil {
			ev.ExternalErr = ext.err.Error()
		}
		if in.err != nil {
			ev.InternalErr = in.err.Error()
		}
		p.config.Events.Publish(ev)
	}

	return bundle, nil
}

func (p *Pipeline) external(ctx context.Context, cls models.Classification, keywords []string) externalResult {
	var res externalResult
	if p.config.Legal == nil || len(keywords) == 0 {
		return res
	}

	refs, err := p.searchRefs(ctx, keywords)
	res.refs = len(refs)
	res.err = err
	if len(refs) == 0 {
		return res
	}

	records, failures := p.config.Legal.FetchAll(ctx, refs)
	res.fetched = len(records)
	res.dropped = len(failures)

	// Relevance is judged on the full body; the excerpt is cut afterwards.
	relevant := p.config.Classifier.FilterRecords(cls.DomainTags, records)
	res.items = p.config.Processor.ExternalItems(relevant)
	return res
}

// searchRefs runs every keyword against every source type and keeps up to
// ResultCap distinct refs per source type in upstream order. A
// configuration error stops the search; other failures skip that call.
func (p *Pipeline) searchRefs(ctx context.Context, keywords []string) ([]models.ExternalRecordRef, error) {
	var refs []models.ExternalRecordRef
	var firstErr error
	seen := make(map[string]bool)

	for _, sourceType := range p.config.SourceTypes {
		kept := 0
		for _, kw := range keywords {
			if kept >= p.config.ResultCap {
				break
			}

			found, err := p.config.Legal.Search(ctx, sourceType, kw, p.config.ResultCap)
			if err != nil {
				var cfgErr *lawapi.ConfigurationError
				if errors.As(err, &cfgErr) || ctx.Err() != nil {
					return refs, err
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			for _, ref := range found {
				key := ref.SourceType + ":" + ref.ID
				if seen[key] || kept >= p.config.ResultCap {
					continue
				}
				seen[key] = true
				refs = append(refs, ref)
				kept++
			}
		}
	}

	return refs, firstErr
}

func (p *Pipeline) internal(ctx context.Context, text string) internalResult {
	var res internalResult
	if p.config.Semantic == nil || strings.TrimSpace(text) == "" {
		return res
	}

	res.items, res.err = p.config.Semantic.Search(ctx, text, p.config.TopK)
	return res
}

func (p *Pipeline) logBranchError(log logrus.FieldLogger, branch string, err error) {
	if err == nil {
		return
	}

	entry := log.WithError(err).WithField("branch", branch)
	var cfgErr *lawapi.ConfigurationError
	if errors.As(err, &cfgErr) {
		entry.Error("Legal database credential unavailable, continuing without external context")
		return
	}
	entry.Warn("Retrieval source degraded, continuing without it")
}
