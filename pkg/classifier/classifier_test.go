package classifier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := New(DefaultKeywordSets())

	tests := []struct {
		name     string
		query    string
		tags     []string
		keywords []string
	}{
		{
			name:     "colloquial bullying complaint",
			query:    "사장님이 왕따시켜서 너무 힘들어요",
			tags:     []string{"labor"},
			keywords: []string{"직장 내 괴롭힘", "근로기준법"},
		},
		{
			name:     "exact keyword wins over synonyms",
			query:    "회사에서 부당해고를 당했습니다",
			tags:     []string{"labor"},
			keywords: []string{"부당해고", "해고"},
		},
		{
			name:     "spacing differences",
			query:    "직장내괴롭힘 신고 방법",
			tags:     []string{"labor"},
			keywords: []string{"직장 내 괴롭힘"},
		},
		{
			name:     "two domains",
			query:    "일하다 다쳤는데 사장이 산재 처리를 안 해줘요",
			tags:     []string{"labor", "insurance"},
			keywords: []string{"근로기준법", "산재"},
		},
		{
			name:  "no overlap",
			query: "오늘 날씨 어때요?",
		},
		{
			name:  "empty",
			query: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(tt.query)
			assert.Equal(t, tt.tags, cls.DomainTags)
			assert.Equal(t, tt.keywords, cls.ExpandedKeywords)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := New(DefaultKeywordSets())
	query := "야근 수당도 못 받고 팀장이 폭언을 해요"

	first := c.Classify(query)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Classify(query))
	}
}

func TestSearchKeywords(t *testing.T) {
	cls := models.Classification{
		DomainTags:       []string{"labor"},
		ExpandedKeywords: []string{"직장 내 괴롭힘", "근로기준법"},
	}

	assert.Equal(t, []string{"직장 내 괴롭힘"}, SearchKeywords(cls, "사장님이 왕따시켜서", 1))
	assert.Equal(t, []string{"직장 내 괴롭힘", "근로기준법"}, SearchKeywords(cls, "raw", 5))
	assert.Equal(t, []string{"오늘 날씨"}, SearchKeywords(models.Classification{}, "오늘 날씨", 1))
	assert.Nil(t, SearchKeywords(models.Classification{}, " ", 1))
}

func TestRelevance(t *testing.T) {
	c := New(DefaultKeywordSets())

	assert.True(t, c.IsRelevant("labor", "부당해고구제재심판정취소", ""))
	assert.True(t, c.IsRelevant("labor", "", "근로기준법 제76조의2에 따른 직장 내 괴롭힘"))
	assert.False(t, c.IsRelevant("labor", "소유권이전등기", "부동산 매매계약의 해제"))
	assert.False(t, c.IsRelevant("unknown", "해고", "해고"))

	// A coincidental keyword match is accepted.
	assert.True(t, c.IsRelevant("labor", "손해배상(기)", "피고 회사의 사용자 책임"))

	assert.True(t, c.RelevantToAny(nil, "anything", "goes"))
	assert.True(t, c.RelevantToAny([]string{"insurance", "labor"}, "", "임금 청구"))

	records := []models.ExternalRecord{
		{ID: "1", Title: "부당해고구제재심판정취소"},
		{ID: "2", Title: "소유권이전등기"},
		{ID: "3", Title: "임금", FullText: "퇴직금 청구"},
	}
	filtered := c.FilterRecords([]string{"labor"}, records)
	require.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].ID)
	assert.Equal(t, "3", filtered[1].ID)
}

func TestFilterRecordsReadsFullBody(t *testing.T) {
	c := New(DefaultKeywordSets())

	body := strings.Repeat("피고는 원고에게 금원을 지급하라는 청구를 다툰다. ", 200) + "원고는 부당해고를 주장한다."
	records := []models.ExternalRecord{{ID: "1", Title: "손해배상", FullText: body}}

	filtered := c.FilterRecords([]string{"labor"}, records)
	require.Len(t, filtered, 1)
	assert.Equal(t, "1", filtered[0].ID)
}

func TestLoadKeywordSets(t *testing.T) {
	sets, err := LoadKeywordSets("")
	require.NoError(t, err)
	assert.Equal(t, DefaultKeywordSets(), sets)

	dir := t.TempDir()
	path := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
domains:
  - domain: tax
    keywords: [종합소득세, 부가가치세]
    synonyms:
      - terms: [세금]
        expands: [종합소득세]
`), 0644))

	sets, err = LoadKeywordSets(path)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "tax", sets[0].Domain)

	cls := New(sets).Classify("세금 신고 기한이 궁금해요")
	assert.Equal(t, []string{"tax"}, cls.DomainTags)
	assert.Equal(t, []string{"종합소득세"}, cls.ExpandedKeywords)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("domains:\n  - domain: empty\n"), 0644))
	_, err = LoadKeywordSets(bad)
	assert.Error(t, err)
}
