// Package render turns forum records into terminal text: BBCode post bodies
// to plain text, and listings to tables shared by the shell and the menu.
package render

import (
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
)

// ImageHost serves attachments referenced as ./path in [img] tags.
const ImageHost = "https://img.nga.178.com/"

var (
	stickerRe   = regexp.MustCompile(`\[s:(?:ac:|a2:|pst:|dt:|pg:)?([^\]]+?)\]`)
	imgRe       = regexp.MustCompile(`(?is)\[img\](.*?)\[/img\]`)
	urlRe       = regexp.MustCompile(`(?is)\[url\](.*?)\[/url\]`)
	urlNamedRe  = regexp.MustCompile(`(?is)\[url=([^\]]*)\](.*?)\[/url\]`)
	delRe       = regexp.MustCompile(`(?is)\[del\](.*?)\[/del\]`)
	collapseRe  = regexp.MustCompile(`(?is)\[collapse(?:=([^\]]*))?\](.*?)\[/collapse\]`)
	residualRe  = regexp.MustCompile(`(?i)\[/?(?:b|i|u|color|size|font|align|list|td|tr|table|h|pid|tid|uid|code|flash|dice|randomblock|album|attach|l|r|\*)(?:[=\s][^\]]*)?\]`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// PostText converts a post body (BBCode mixed with HTML line breaks and
// entities) into plain text. Quotes and collapsed sections become "> "
// prefixed blocks, images and links become their URLs, stickers become
// :name:, and formatting tags are dropped.
func PostText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	text := htmlToText(content)

	text = stickerRe.ReplaceAllString(text, ":$1:")
	text = replaceQuotes(text)
	text = collapseRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := collapseRe.FindStringSubmatch(m)
		title := strings.TrimSpace(sub[1])
		if title == "" {
			title = "collapsed"
		}
		return "\n[" + title + "]\n" + quoteBlock(stripTags(sub[2])) + "\n"
	})
	text = imgRe.ReplaceAllStringFunc(text, func(m string) string {
		return "[image " + imageURL(imgRe.FindStringSubmatch(m)[1]) + "]"
	})
	text = urlNamedRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := urlNamedRe.FindStringSubmatch(m)
		href, label := strings.TrimSpace(sub[1]), strings.TrimSpace(sub[2])
		if label == "" || label == href {
			return href
		}
		return label + " (" + href + ")"
	})
	text = urlRe.ReplaceAllString(text, "$1")
	text = delRe.ReplaceAllString(text, "~$1~")
	text = residualRe.ReplaceAllString(text, "")

	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// htmlToText resolves <br/>, entities and any stray markup. Newlines in the
// source are not significant to HTML, so they are turned into <br> first.
func htmlToText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\n", "<br/>")
	text, err := html2text.FromString(content, html2text.Options{OmitLinks: false})
	if err != nil {
		return content
	}
	return text
}

func imageURL(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "./") {
		return ImageHost + strings.TrimPrefix(src, "./")
	}
	return src
}

// replaceQuotes rewrites [quote] blocks innermost first so nested quotes
// nest their prefixes.
func replaceQuotes(text string) string {
	const open, closing = "[quote]", "[/quote]"
	for i := 0; i < 64; i++ {
		lower := asciiLower(text)
		end := strings.Index(lower, closing)
		if end < 0 {
			break
		}
		start := strings.LastIndex(lower[:end], open)
		if start < 0 {
			// Unbalanced close tag: drop it.
			text = text[:end] + text[end+len(closing):]
			continue
		}
		inner := stripTags(text[start+len(open) : end])
		text = text[:start] + "\n" + quoteBlock(inner) + "\n" + text[end+len(closing):]
	}
	return text
}

// stripTags removes formatting tags from quoted text, where the reply
// header ([pid], [uid], [b]) adds nothing.
func stripTags(s string) string {
	s = urlNamedRe.ReplaceAllString(s, "$2")
	s = urlRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(residualRe.ReplaceAllString(s, ""))
}

func quoteBlock(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	return strings.Join(lines, "\n")
}

// asciiLower lowercases ASCII letters only, keeping byte offsets intact.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
