package converter

import (
	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/converterutil"
	"github.com/mixaill76/byok_router/internal/converter/openai"
)

// toAnthropicContent keeps string content as a string; part arrays become
// block arrays. Parts without an equivalent are dropped.
func toAnthropicContent(c openai.Content) anthropic.Content {
	if !c.IsParts() {
		return anthropic.TextContent(c.Text)
	}
	blocks := make([]anthropic.ContentBlock, 0, len(c.Parts))
	for _, part := range c.Parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, anthropic.ContentBlock{Type: "text", Text: part.Text})
		case "image_url":
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				continue
			}
			blocks = append(blocks, anthropic.ContentBlock{Type: "image", Source: imageSource(part.ImageURL.URL)})
		}
	}
	return anthropic.Content{Blocks: blocks}
}

func imageSource(url string) *anthropic.MediaSource {
	if mediaType, data, ok := converterutil.ParseDataURL(url); ok {
		return &anthropic.MediaSource{Type: "base64", MediaType: mediaType, Data: data}
	}
	return &anthropic.MediaSource{Type: "url", URL: url}
}

func toOpenAIContent(c anthropic.Content) openai.Content {
	if !c.IsBlocks() {
		return openai.TextContent(c.Text)
	}
	parts := make([]openai.ContentPart, 0, len(c.Blocks))
	for _, block := range c.Blocks {
		switch block.Type {
		case "text":
			parts = append(parts, openai.ContentPart{Type: "text", Text: block.Text})
		case "image":
			if block.Source == nil {
				continue
			}
			url := block.Source.URL
			if block.Source.Type == "base64" {
				url = converterutil.DataURL(block.Source.MediaType, block.Source.Data)
			}
			if url == "" {
				continue
			}
			parts = append(parts, openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}})
		}
	}
	return openai.Content{Parts: parts}
}
