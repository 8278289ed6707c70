package classifier

import (
	"fmt"
	"os"

	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	"gopkg.in/yaml.v3"
)

// LoadKeywordSets reads a keyword table from a YAML file of the form
//
//	domains:
//	  - domain: labor
//	    keywords: [해고, 임금]
//	    synonyms:
//	      - terms: [잘렸]
//	        expands: [부당해고]
//
// An empty path returns the built-in table.
func LoadKeywordSets(path string) ([]models.KeywordSet, error) {
	if path == "" {
		return DefaultKeywordSets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading keyword file: %w", err)
	}

	var file struct {
		Domains []models.KeywordSet `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing keyword file: %w", err)
	}

	seen := make(map[string]bool)
	for _, set := range file.Domains {
		if set.Domain == "" {
			return nil, fmt.Errorf("keyword set without domain name")
		}
		if seen[set.Domain] {
			return nil, fmt.Errorf("duplicate keyword set %q", set.Domain)
		}
		if len(set.Keywords) == 0 {
			return nil, fmt.Errorf("keyword set %q has no keywords", set.Domain)
		}
		seen[set.Domain] = true
	}

	return file.Domains, nil
}

// Built-in labor and social insurance tables
func DefaultKeywordSets() []models.KeywordSet {
	return []models.KeywordSet{
		{
			Domain: "labor",
			Keywords: []string{
				"직장 내 괴롭힘", "부당해고", "해고", "임금체불", "임금", "퇴직금",
				"근로계약", "근로기준법", "연차", "휴업수당", "최저임금", "연장근로",
				"징계", "전보", "직장 내 성희롱", "근로자", "사용자",
			},
			Synonyms: []models.SynonymRule{
				{Terms: []string{"왕따", "따돌림", "괴롭", "갑질", "폭언", "욕설", "무시당"}, Expands: []string{"직장 내 괴롭힘"}},
				{Terms: []string{"잘렸", "잘린", "짤렸", "짤린", "그만두라", "나가라", "권고사직"}, Expands: []string{"부당해고", "해고"}},
				{Terms: []string{"월급", "급여", "돈을 안", "못 받", "안 줘", "안줘"}, Expands: []string{"임금체불"}},
				{Terms: []string{"야근", "주말 출근", "초과근무"}, Expands: []string{"연장근로"}},
				{Terms: []string{"성추행", "추행", "성적"}, Expands: []string{"직장 내 성희롱"}},
				{Terms: []string{"사장", "상사", "팀장", "회사", "직장", "알바", "아르바이트", "대표님"}, Expands: []string{"근로기준법"}},
			},
		},
		{
			Domain: "insurance",
			Keywords: []string{
				"산업재해", "산재", "고용보험", "실업급여", "국민연금", "건강보험", "4대보험", "요양급여",
			},
			Synonyms: []models.SynonymRule{
				{Terms: []string{"다쳤", "다친", "부상", "사고"}, Expands: []string{"산업재해"}},
				{Terms: []string{"실업", "구직급여", "실직"}, Expands: []string{"실업급여"}},
				{Terms: []string{"보험 가입", "보험가입", "4대 보험"}, Expands: []string{"4대보험"}},
			},
		},
	}
}
