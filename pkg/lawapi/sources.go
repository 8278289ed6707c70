package lawapi

import "github.com/kyj44123-afk/cpla.ai-sub001/internal/models"

// SourceSpec describes how one upstream record kind is searched and read.
// Paths are dotted JSON paths into the fetch document; arrays along a path
// are flattened.
type SourceSpec struct {
	Target     string
	SearchRoot string
	IDMarker   string
	IDParam    string
	FetchRoot  string
	TitlePath  string
	NumberPath string
	TextPaths  []string
}

func DefaultSources() map[string]SourceSpec {
	return map[string]SourceSpec{
		models.SourceTypePrecedent: {
			Target:     "prec",
			SearchRoot: "PrecSearch",
			IDMarker:   "판례일련번호",
			IDParam:    "ID",
			FetchRoot:  "PrecService",
			TitlePath:  "사건명",
			NumberPath: "사건번호",
			TextPaths:  []string{"판시사항", "판결요지", "판례내용"},
		},
		models.SourceTypeStatute: {
			Target:     "law",
			SearchRoot: "LawSearch",
			IDMarker:   "법령일련번호",
			IDParam:    "MST",
			FetchRoot:  "법령",
			TitlePath:  "기본정보.법령명_한글",
			NumberPath: "기본정보.공포번호",
			TextPaths:  []string{"조문.조문단위.조문내용"},
		},
	}
}
