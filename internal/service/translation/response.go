package translation

import (
	"bytes"
	"encoding/json"
)

// responseShape 标识翻译服务成功响应的两种已知结构
type responseShape int

const (
	shapeUnknown responseShape = iota
	// shapeArray: [{"translations":[{"text":...}]}]（v3.0 接口）
	shapeArray
	// shapeWrapped: {"value":[{"translations":[{"text":...}]}]}（preview 接口）
	shapeWrapped
)

type translatedItem struct {
	Translations []struct {
		Text     string `json:"text"`
		Language string `json:"language,omitempty"`
	} `json:"translations"`
}

type wrappedResponse struct {
	Value []translatedItem `json:"value"`
}

func classifyResponse(body []byte) responseShape {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return shapeUnknown
	}
	switch trimmed[0] {
	case '[':
		return shapeArray
	case '{':
		return shapeWrapped
	default:
		return shapeUnknown
	}
}

// decodeTranslatedText 按响应结构取出第一条译文；结构不匹配时返回空串而不是报错。
func decodeTranslatedText(body []byte) string {
	var items []translatedItem

	switch classifyResponse(body) {
	case shapeArray:
		if err := json.Unmarshal(body, &items); err != nil {
			return ""
		}
	case shapeWrapped:
		var wrapped wrappedResponse
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return ""
		}
		items = wrapped.Value
	default:
		return ""
	}

	if len(items) == 0 || len(items[0].Translations) == 0 {
		return ""
	}
	return items[0].Translations[0].Text
}
