package filter

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

// ExpandNumbers rewrites standalone numeric tokens into speakable word
// form for the given language ("en" or "ru"; anything else falls back to
// English). Tokens too large to verbalize are left as digits.
func ExpandNumbers(text, lang string) string {
	return numberPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if intPart, fracPart, ok := strings.Cut(tok, "."); ok {
			left, okL := expandInteger(intPart, lang)
			right, okR := expandInteger(fracPart, lang)
			if !okL || !okR {
				return tok
			}
			return left + " " + pointWord(lang) + " " + right
		}
		words, ok := expandInteger(tok, lang)
		if !ok {
			return tok
		}
		return words
	})
}

func pointWord(lang string) string {
	if lang == "ru" {
		return "точка"
	}
	return "point"
}

func expandInteger(digits, lang string) (string, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > 999_999_999_999 {
		return "", false
	}
	if lang == "ru" {
		return russianWords(n), true
	}
	return englishWords(n), true
}

var (
	enOnes = []string{"zero", "one", "two", "three", "four", "five", "six", "seven",
		"eight", "nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
		"sixteen", "seventeen", "eighteen", "nineteen"}
	enTens   = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	enScales = []string{"", "thousand", "million", "billion"}
)

func englishWords(n int64) string {
	if n == 0 {
		return "zero"
	}
	var groups []int64
	for n > 0 {
		groups = append(groups, n%1000)
		n /= 1000
	}
	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g == 0 {
			continue
		}
		part := englishTriplet(g)
		if enScales[i] != "" {
			part += " " + enScales[i]
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

func englishTriplet(n int64) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, enOnes[n/100], "hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		parts = append(parts, enOnes[n])
	default:
		tens := enTens[n/10]
		if n%10 != 0 {
			tens += "-" + enOnes[n%10]
		}
		parts = append(parts, tens)
	}
	return strings.Join(parts, " ")
}

var (
	ruOnes = []string{"ноль", "один", "два", "три", "четыре", "пять", "шесть", "семь",
		"восемь", "девять", "десять", "одиннадцать", "двенадцать", "тринадцать",
		"четырнадцать", "пятнадцать", "шестнадцать", "семнадцать", "восемнадцать", "девятнадцать"}
	ruOnesFem = map[int64]string{1: "одна", 2: "две"}
	ruTens    = []string{"", "", "двадцать", "тридцать", "сорок", "пятьдесят",
		"шестьдесят", "семьдесят", "восемьдесят", "девяносто"}
	ruHundreds = []string{"", "сто", "двести", "триста", "четыреста", "пятьсот",
		"шестьсот", "семьсот", "восемьсот", "девятьсот"}
)

type ruScale struct {
	one, few, many string
	feminine       bool
}

var ruScales = []ruScale{
	{},
	{one: "тысяча", few: "тысячи", many: "тысяч", feminine: true},
	{one: "миллион", few: "миллиона", many: "миллионов"},
	{one: "миллиард", few: "миллиарда", many: "миллиардов"},
}

func russianWords(n int64) string {
	if n == 0 {
		return "ноль"
	}
	var groups []int64
	for n > 0 {
		groups = append(groups, n%1000)
		n /= 1000
	}
	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g == 0 {
			continue
		}
		scale := ruScales[i]
		parts = append(parts, russianTriplet(g, scale.feminine))
		if scale.one != "" {
			parts = append(parts, ruPlural(g, scale))
		}
	}
	return strings.Join(parts, " ")
}

func russianTriplet(n int64, feminine bool) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, ruHundreds[n/100])
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		word := ruOnes[n]
		if feminine {
			if fem, ok := ruOnesFem[n]; ok {
				word = fem
			}
		}
		parts = append(parts, word)
	default:
		parts = append(parts, ruTens[n/10])
		if n%10 != 0 {
			word := ruOnes[n%10]
			if feminine {
				if fem, ok := ruOnesFem[n%10]; ok {
					word = fem
				}
			}
			parts = append(parts, word)
		}
	}
	return strings.Join(parts, " ")
}

func ruPlural(n int64, scale ruScale) string {
	n %= 100
	if n >= 11 && n <= 14 {
		return scale.many
	}
	switch n % 10 {
	case 1:
		return scale.one
	case 2, 3, 4:
		return scale.few
	default:
		return scale.many
	}
}
