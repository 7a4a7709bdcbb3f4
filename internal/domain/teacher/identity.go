package teacher

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const codeBonus = 5

// NormalizeName reduces a free-text teacher name to a surname+initials key.
// "Иванов А.Б.", "иванов а б" and "Иванов Андрей Борисович" all map to "иванов:аб".
func NormalizeName(name string) string {
	cleaned := strings.ReplaceAll(strings.ToLower(name), ".", " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}

	surname := tokens[0]
	switch {
	case len(tokens) == 1:
		return surname
	case len(tokens) >= 3:
		return surname + ":" + firstRunes(tokens[1], 1) + firstRunes(tokens[2], 1)
	default:
		return surname + ":" + firstRunes(tokens[1], 2)
	}
}

func firstRunes(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if n == 0 {
			break
		}
		b.WriteRune(r)
		n--
	}
	return b.String()
}

// Score ranks display variants of the same person: longer names win and a
// source-assigned code is worth five characters.
func Score(t Teacher) int {
	score := utf8.RuneCountInString(t.Name)
	if t.Code.Valid {
		score += codeBonus
	}
	return score
}

// Resolve merges records sharing an identity key into one record per key.
// Keys are filled in from names when missing. Records whose name yields no
// key are dropped. The result is ordered by key.
func Resolve(records []Teacher) []Teacher {
	best := make(map[string]Teacher, len(records))
	for _, rec := range records {
		rec.Name = strings.Join(strings.Fields(rec.Name), " ")
		if rec.Key == "" {
			rec.Key = NormalizeName(rec.Name)
		}
		if rec.Key == "" {
			continue
		}

		current, ok := best[rec.Key]
		if !ok {
			best[rec.Key] = rec
			continue
		}
		best[rec.Key] = merge(current, rec)
	}

	out := make([]Teacher, 0, len(best))
	for _, t := range best {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func merge(current, candidate Teacher) Teacher {
	winner, loser := current, candidate
	cs, ns := Score(current), Score(candidate)
	if ns > cs || (ns == cs && candidate.Code.Valid && !current.Code.Valid) {
		winner, loser = candidate, current
	}

	if !winner.Code.Valid && loser.Code.Valid {
		winner.Code = loser.Code
	}
	if winner.SourceHref == "" {
		winner.SourceHref = loser.SourceHref
		winner.URL = loser.URL
	}
	return winner
}
