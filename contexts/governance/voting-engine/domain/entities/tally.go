package entities

import (
	"math"
	"strconv"
)

type OptionResult struct {
	Index      int
	Option     string
	Votes      int
	Percentage string
}

// Tally reports raw counts per option with a one-decimal percentage of the
// total, halves rounded up. An empty ballot reports "0" for every option.
func Tally(v Voting) []OptionResult {
	total := v.TotalVotes()
	results := make([]OptionResult, 0, len(v.Options))
	for index, option := range v.Options {
		count := v.Votes[index]
		percentage := "0"
		if total > 0 {
			share := float64(count) / float64(total) * 100
			percentage = strconv.FormatFloat(math.Round(share*10)/10, 'f', 1, 64)
		}
		results = append(results, OptionResult{
			Index:      index,
			Option:     option,
			Votes:      count,
			Percentage: percentage,
		})
	}
	return results
}
