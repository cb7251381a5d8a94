// Package spam はコンテンツ本文のスパム判定ヒューリスティックを提供する。
package spam

import (
	"regexp"
	"strings"
	"unicode"
)

// Result はスパム判定の結果。Confidenceは0.0〜1.0のスコアで、
// 閾値以上の場合にIsSpamとなる。Indicatorsは検出された兆候の内訳。
type Result struct {
	IsSpam     bool
	Confidence float64
	Indicators map[string]any
}

// Analyzer はスコア加算方式のスパム判定器。外部サービスには依存せず
// プロセス内で完結する。
type Analyzer struct {
	threshold float64
}

// NewAnalyzer はAnalyzerを生成する。thresholdは(0, 1]の判定閾値。
func NewAnalyzer(threshold float64) *Analyzer {
	return &Analyzer{threshold: threshold}
}

var (
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s]+|www\.[^\s]+`)

	// よくある宣伝・詐欺系の定型句。部分一致で判定する。
	spamPhrases = []string{
		"buy now",
		"click here",
		"free money",
		"limited time offer",
		"100% free",
		"make money fast",
		"work from home",
		"casino",
		"viagra",
		"crypto giveaway",
	}
)

// Analyze は本文を解析してスパム判定を返す。
func (a *Analyzer) Analyze(content string) Result {
	indicators := make(map[string]any)
	score := 0.0

	lower := strings.ToLower(content)

	if n := len(urlPattern.FindAllString(content, -1)); n > 0 {
		if n >= 3 {
			score += 0.4
			indicators["excessive_links"] = n
		} else {
			score += 0.1
			indicators["links"] = n
		}
	}

	if ratio := upperRatio(content); ratio > 0.6 && letterCount(content) >= 20 {
		score += 0.3
		indicators["excessive_caps"] = ratio
	}

	if run := longestRun(content); run >= 10 {
		score += 0.2
		indicators["character_repetition"] = run
	}

	if word, n := dominantWord(lower); n >= 5 {
		score += 0.2
		indicators["word_repetition"] = word
	}

	var matched []string
	for _, phrase := range spamPhrases {
		if strings.Contains(lower, phrase) {
			matched = append(matched, phrase)
		}
	}
	if len(matched) > 0 {
		score += 0.3 * float64(len(matched))
		indicators["spam_phrases"] = matched
	}

	if score > 1.0 {
		score = 1.0
	}

	return Result{
		IsSpam:     score >= a.threshold,
		Confidence: score,
		Indicators: indicators,
	}
}

// upperRatio は英字のうち大文字の割合を返す。
func upperRatio(s string) float64 {
	var upper, letters int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func letterCount(s string) int {
	var n int
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// longestRun は同一文字の最長連続数を返す。空白は対象外。
func longestRun(s string) int {
	var best, cur int
	var prev rune
	for _, r := range s {
		if unicode.IsSpace(r) {
			cur = 0
			prev = 0
			continue
		}
		if r == prev {
			cur++
		} else {
			cur = 1
			prev = r
		}
		if cur > best {
			best = cur
		}
	}
	return best
}

// dominantWord は最頻出単語とその出現回数を返す。短い単語は除外する。
func dominantWord(lower string) (string, int) {
	counts := make(map[string]int)
	var bestWord string
	var bestN int
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?:;\"'()")
		if len(w) < 4 {
			continue
		}
		counts[w]++
		if counts[w] > bestN {
			bestWord = w
			bestN = counts[w]
		}
	}
	return bestWord, bestN
}
