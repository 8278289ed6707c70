package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/classifier"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/lawapi"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/llm"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/retrieval"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/secrets"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLegal struct {
	mu       sync.Mutex
	keywords []string
	refs     []models.ExternalRecordRef
	records  map[string]models.ExternalRecord
	err      error
}

func (f *fakeLegal) Search(_ context.Context, sourceType, keyword string, resultCap int) ([]models.ExternalRecordRef, error) {
	f.mu.Lock()
	f.keywords = append(f.keywords, keyword)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var refs []models.ExternalRecordRef
	for _, ref := range f.refs {
		if len(refs) == resultCap {
			break
		}
		refs = append(refs, models.ExternalRecordRef{ID: ref.ID, SourceType: sourceType})
	}
	return refs, nil
}

func (f *fakeLegal) FetchAll(_ context.Context, refs []models.ExternalRecordRef) ([]models.ExternalRecord, []models.FetchFailure) {
	var records []models.ExternalRecord
	var failures []models.FetchFailure
	for _, ref := range refs {
		rec, ok := f.records[ref.ID]
		if !ok {
			failures = append(failures, models.FetchFailure{Ref: ref, Err: lawapi.ErrRecordNotFound})
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

type fakeSemantic struct {
	items []models.RetrievedItem
	err   error
}

func (f *fakeSemantic) Search(context.Context, string, int) ([]models.RetrievedItem, error) {
	return f.items, f.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.RetrievalEvent
}

func (s *recordingSink) Publish(ev models.RetrievalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func newPipeline(t *testing.T, config retrieval.PipelineConfig) *retrieval.Pipeline {
	t.Helper()
	if config.Classifier == nil {
		config.Classifier = classifier.New(classifier.DefaultKeywordSets())
	}
	if config.Logger == nil {
		log, _ := test.NewNullLogger()
		config.Logger = log
	}
	p, err := retrieval.NewWithConfig(config)
	require.NoError(t, err)
	return p
}

func internalHit(id string, score float64) models.RetrievedItem {
	return models.RetrievedItem{
		Source:     models.SourceInternal,
		ID:         id,
		Title:      "사내 매뉴얼",
		Text:       "괴롭힘 신고 절차 " + id,
		Score:      score,
		DocumentID: "doc1",
	}
}

func countSource(bundle models.ContextBundle, source string) int {
	n := 0
	for _, c := range bundle.Citations {
		if c.Source == source {
			n++
		}
	}
	return n
}

func TestRetrieveColloquialQuery(t *testing.T) {
	legal := &fakeLegal{
		refs: []models.ExternalRecordRef{{ID: "228541", SourceType: "prec"}, {ID: "9", SourceType: "prec"}},
		records: map[string]models.ExternalRecord{
			"228541": {ID: "228541", Title: "직장 내 괴롭힘 손해배상", CaseOrStatuteNumber: "2021다1", FullText: "상사의 반복적 폭언은 직장 내 괴롭힘에 해당한다.", SourceType: "prec"},
			"9":      {ID: "9", Title: "토지 소유권 이전등기", CaseOrStatuteNumber: "2020다9", FullText: "등기 원인의 무효", SourceType: "prec"},
		},
	}
	sink := &recordingSink{}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:    legal,
		Semantic: &fakeSemantic{items: []models.RetrievedItem{internalHit("c1", 0.8)}},
		Events:   sink,
	})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "사장님이 왕따시켜서 너무 힘들어요", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"직장 내 괴롭힘"}, legal.keywords)
	assert.Contains(t, bundle.DomainTags, "labor")

	// the unrelated land registry precedent is filtered out
	require.Len(t, bundle.Citations, 2)
	assert.Equal(t, "c1", bundle.Citations[0].ID)
	assert.Equal(t, "228541", bundle.Citations[1].ID)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.NotEmpty(t, ev.RequestID)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, 2, ev.ExternalRefs)
	assert.Equal(t, 2, ev.ExternalFetched)
	assert.Equal(t, 1, ev.ExternalRelevant)
	assert.Equal(t, 1, ev.InternalHits)
	assert.Equal(t, 2, ev.Citations)
	assert.Empty(t, ev.ExternalErr)
	assert.Empty(t, ev.InternalErr)
}

func TestRetrieveUnclassifiedUsesRawText(t *testing.T) {
	legal := &fakeLegal{}
	p := newPipeline(t, retrieval.PipelineConfig{Legal: legal})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "오늘 날씨 어때요"})
	require.NoError(t, err)
	assert.Equal(t, []string{"오늘 날씨 어때요"}, legal.keywords)
	assert.Empty(t, bundle.Citations)
	assert.Empty(t, bundle.DomainTags)
}

func TestRetrieveMultipleSourceTypes(t *testing.T) {
	legal := &fakeLegal{
		refs: []models.ExternalRecordRef{{ID: "1", SourceType: "prec"}, {ID: "2", SourceType: "prec"}, {ID: "3", SourceType: "prec"}},
	}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:             legal,
		SourceTypes:       []string{"prec", "law"},
		MaxSearchKeywords: 2,
		ResultCap:         2,
	})

	_, err := p.Retrieve(context.Background(), models.Query{Text: "부당해고 당했는데 퇴직금도 못 받았어요"})
	require.NoError(t, err)

	// the cap is reached by the first keyword so the second is not sent
	assert.Equal(t, []string{"부당해고", "부당해고"}, legal.keywords)
}

func lawServer(t *testing.T, ids []string, slow map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/DRF/lawSearch.do":
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><PrecSearch>`)
			for _, id := range ids {
				fmt.Fprintf(&b, `<prec><판례일련번호>%s</판례일련번호></prec>`, id)
			}
			b.WriteString(`</PrecSearch>`)
			w.Write([]byte(b.String()))
		case "/DRF/lawService.do":
			id := r.URL.Query().Get("ID")
			if slow[id] {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			fmt.Fprintf(w, `{"PrecService":{"사건명":"부당해고구제재심판정취소 %s","사건번호":"2019두%s","판시사항":"부당해고 판단 기준 %s","판결요지":"근로기준법 제23조"}}`, id, id, id)
		default:
			http.NotFound(w, r)
		}
	}))
}

type staticSecret string

func (s staticSecret) Get(string) (string, error) {
	return string(s), nil
}

func newLawClient(t *testing.T, url string, creds interface{ Get(string) (string, error) }) *lawapi.Client {
	t.Helper()
	c, err := lawapi.NewWithConfig(lawapi.ClientConfig{
		BaseURL:     url,
		Credentials: creds,
		CallTimeout: 100 * time.Millisecond,
		Workers:     4,
		RateLimit:   1000,
		Logger:      logrus.New(),
	})
	require.NoError(t, err)
	return c
}

func TestRetrieveDegradesOnFetchTimeouts(t *testing.T) {
	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, fmt.Sprintf("%d", 5000+i))
	}
	server := lawServer(t, ids, map[string]bool{"5002": true, "5009": true, "5015": true})
	defer server.Close()

	sink := &recordingSink{}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:     newLawClient(t, server.URL, staticSecret("oc")),
		Semantic:  &fakeSemantic{items: []models.RetrievedItem{internalHit("c1", 0.7), internalHit("c2", 0.6)}},
		ResultCap: 20,
		Budget:    100000,
		Events:    sink,
	})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "부당해고 구제신청 방법"})
	require.NoError(t, err)

	assert.Equal(t, 17, countSource(bundle, models.SourceExternal))
	assert.Equal(t, 2, countSource(bundle, models.SourceInternal))

	require.Len(t, sink.events, 1)
	assert.Equal(t, 20, sink.events[0].ExternalRefs)
	assert.Equal(t, 3, sink.events[0].ExternalDropped)
}

func TestRetrieveMalformedCredential(t *testing.T) {
	dir := t.TempDir()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, writeFile(filepath.Join(dir, "master.key"), key, 0o600))
	require.NoError(t, writeFile(filepath.Join(dir, "settings.json"), `{"law_api_oc":"deadbeef"}`, 0o600))

	server := lawServer(t, []string{"1"}, nil)
	defer server.Close()

	store := secrets.NewWithConfig(secrets.SecretsConfig{
		KeyPath:      filepath.Join(dir, "master.key"),
		SettingsPath: filepath.Join(dir, "settings.json"),
	})

	log, hook := test.NewNullLogger()
	sink := &recordingSink{}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:    newLawClient(t, server.URL, store),
		Semantic: &fakeSemantic{items: []models.RetrievedItem{internalHit("c1", 0.7)}},
		Events:   sink,
		Logger:   log,
	})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "부당해고"})
	require.NoError(t, err)
	require.Len(t, bundle.Citations, 1)
	assert.Equal(t, models.SourceInternal, bundle.Citations[0].Source)

	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].ExternalErr, "misconfigured")

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
			var cfgErr *lawapi.ConfigurationError
			assert.ErrorAs(t, e.Data[logrus.ErrorKey].(error), &cfgErr)
			assert.ErrorIs(t, e.Data[logrus.ErrorKey].(error), secrets.ErrMalformedSecret)
		}
	}
	assert.True(t, logged)
}

func TestRetrieveEmbeddingUnavailable(t *testing.T) {
	legal := &fakeLegal{
		refs: []models.ExternalRecordRef{{ID: "1", SourceType: "prec"}},
		records: map[string]models.ExternalRecord{
			"1": {ID: "1", Title: "해고무효확인", FullText: "해고의 정당한 이유", SourceType: "prec"},
		},
	}
	log, hook := test.NewNullLogger()
	sink := &recordingSink{}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:    legal,
		Semantic: &fakeSemantic{err: fmt.Errorf("%w: connection refused", llm.ErrEmbeddingUnavailable)},
		Events:   sink,
		Logger:   log,
	})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "해고 통보를 받았어요"})
	require.NoError(t, err)
	require.Len(t, bundle.Citations, 1)
	assert.Equal(t, "1", bundle.Citations[0].ID)
	assert.Contains(t, sink.events[0].InternalErr, "connection refused")

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["branch"] == "internal" {
			warned = true
			assert.ErrorIs(t, e.Data[logrus.ErrorKey].(error), llm.ErrEmbeddingUnavailable)
		}
	}
	assert.True(t, warned)
}

func TestRetrieveRelevanceUsesFullBody(t *testing.T) {
	body := strings.Repeat("피고는 원고에게 금원을 지급하라는 청구를 다툰다. ", 80) + "원고는 부당해고를 주장한다."
	legal := &fakeLegal{
		refs: []models.ExternalRecordRef{{ID: "77", SourceType: "prec"}},
		records: map[string]models.ExternalRecord{
			"77": {ID: "77", Title: "손해배상", FullText: body, SourceType: "prec"},
		},
	}
	p := newPipeline(t, retrieval.PipelineConfig{Legal: legal, Budget: 100000})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "부당해고 구제"})
	require.NoError(t, err)

	// the keyword sits past the excerpt limit, yet the record is kept
	require.Equal(t, 1, countSource(bundle, models.SourceExternal))
	assert.Equal(t, "77", bundle.Citations[0].ID)
	assert.NotContains(t, bundle.PromptText, "원고는 부당해고를 주장한다.")
}

func TestRetrieveBothSourcesDown(t *testing.T) {
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:    &fakeLegal{err: &lawapi.ConfigurationError{Err: secrets.ErrSecretUnavailable}},
		Semantic: &fakeSemantic{err: llm.ErrEmbeddingUnavailable},
	})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "임금체불 신고"})
	require.NoError(t, err)
	assert.Equal(t, "", bundle.PromptText)
	assert.Empty(t, bundle.Citations)
	assert.Equal(t, []string{"labor"}, bundle.DomainTags)
}

func TestRetrieveWithoutSources(t *testing.T) {
	p := newPipeline(t, retrieval.PipelineConfig{})

	bundle, err := p.Retrieve(context.Background(), models.Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, bundle.Citations)
}

func TestRetrieveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	p := newPipeline(t, retrieval.PipelineConfig{
		Legal:    &fakeLegal{err: context.Canceled},
		Semantic: &fakeSemantic{err: context.Canceled},
		Events:   sink,
	})

	_, err := p.Retrieve(ctx, models.Query{Text: "부당해고"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, sink.events)
}

func TestNewWithConfigRequiresClassifier(t *testing.T) {
	_, err := retrieval.NewWithConfig(retrieval.PipelineConfig{})
	assert.Error(t, err)
}

func writeFile(path, content string, mode os.FileMode) error {
	return os.WriteFile(path, []byte(content), mode)
}
