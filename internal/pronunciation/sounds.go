package pronunciation

import "strings"

// sound is one tricky English sound and how to spot it in spelling.
type sound struct {
	symbol string
	// in reports whether the target word contains the sound.
	in func(word string) bool
	// kept reports whether the attempt still spells the sound.
	kept func(attempt string) bool

	tipID, tipEN   string
	goodID, goodEN string
}

const (
	genericGoodID = "Bagus! Pengucapanmu sudah jelas."
	genericGoodEN = "Nice! That sounded clear."
)

var voicedTh = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"they": true, "them": true, "their": true, "there": true, "then": true,
	"than": true, "though": true, "mother": true, "father": true,
	"brother": true, "other": true, "weather": true, "together": true,
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

// shortI matches an "i" that is not part of a long-vowel spelling.
func shortI(word string) bool {
	for i := 0; i < len(word); i++ {
		if word[i] != 'i' {
			continue
		}
		rest := word[i+1:]
		if strings.HasPrefix(rest, "e") || strings.HasPrefix(rest, "gh") || (len(rest) >= 2 && rest[1] == 'e') {
			continue
		}
		if i > 0 && strings.ContainsRune("aeou", rune(word[i-1])) {
			continue
		}
		return true
	}
	return false
}

func keptShortI(attempt string) bool {
	return strings.Contains(attempt, "i") && !strings.Contains(attempt, "ee")
}

var sounds = []sound{
	{
		symbol: "/θ/",
		in:     func(w string) bool { return strings.Contains(w, "th") && !voicedTh[w] },
		kept:   contains("th"),
		tipID:  "Letakkan lidah di antara gigi dan tiup udara perlahan: 'th-ink'.",
		tipEN:  "Put your tongue between your teeth and blow air softly: 'th-ink'.",
		goodID: genericGoodID,
		goodEN: genericGoodEN,
	},
	{
		symbol: "/ð/",
		in:     func(w string) bool { return voicedTh[w] },
		kept:   contains("th"),
		tipID:  "Letakkan lidah di antara gigi dan getarkan suara: 'th-is'.",
		tipEN:  "Put your tongue between your teeth and use your voice: 'th-is'.",
		goodID: genericGoodID,
		goodEN: genericGoodEN,
	},
	{
		symbol: "/v/",
		in:     contains("v"),
		kept:   contains("v"),
		tipID:  "Sentuhkan gigi atas ke bibir bawah dan getarkan suara: 'v-ery', bukan 'f' atau 'p'.",
		tipEN:  "Touch your top teeth to your lower lip and use your voice: 'v-ery', not 'f' or 'p'.",
		goodID: genericGoodID,
		goodEN: genericGoodEN,
	},
	{
		symbol: "/r/",
		in:     contains("r"),
		kept:   contains("r"),
		tipID:  "Tarik lidah sedikit ke belakang tanpa menyentuh langit-langit mulut.",
		tipEN:  "Pull your tongue back slightly without touching the roof of your mouth.",
		goodID: genericGoodID,
		goodEN: genericGoodEN,
	},
	{
		symbol: "vowel /ɪ/",
		in:     shortI,
		kept:   keptShortI,
		tipID:  "Ucapkan vokal pendek dan rileks, bukan 'ii' panjang.",
		tipEN:  "Keep the vowel short and relaxed, not a long 'ee'.",
		goodID: "Vokal pendek sudah bagus!",
		goodEN: "Short vowel is good!",
	},
}

// wholeWord is used for words without any tracked sound.
var wholeWord = sound{
	symbol: "word",
	tipID:  "Dengarkan lagi dan ucapkan kata ini perlahan, suku kata demi suku kata.",
	tipEN:  "Listen again and say the word slowly, one syllable at a time.",
	goodID: genericGoodID,
	goodEN: genericGoodEN,
}

func soundsIn(word string) []sound {
	var out []sound
	for _, s := range sounds {
		if s.in(word) {
			out = append(out, s)
		}
	}
	return out
}
