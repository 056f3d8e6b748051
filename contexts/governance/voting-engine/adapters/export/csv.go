package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sntportal/contexts/governance/voting-engine/domain/entities"
)

const utf8BOM = "\ufeff"

// FileName is the suggested download name for a ballot export.
func FileName(votingID string, now time.Time) string {
	return fmt.Sprintf("voting_%s_%s.csv", votingID, now.UTC().Format("2006-01-02"))
}

// WriteResultsCSV writes the ballot summary, one row per vote record and
// the per-option statistics. The BOM keeps spreadsheet tools on UTF-8.
func WriteResultsCSV(w io.Writer, voting entities.Voting, records []entities.VoteRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Voting", voting.Title},
		{"Description", voting.Description},
		{"End date", voting.EndDate.UTC().Format(time.RFC3339)},
		{"Total votes", strconv.Itoa(len(records))},
		{},
		{"Last name", "First name", "Plot", "Email", "Selected options", "Voted at"},
	}
	for _, record := range records {
		rows = append(rows, []string{
			record.Voter.LastName,
			record.Voter.FirstName,
			record.Voter.PlotNumber,
			record.VoterEmail,
			selectedOptionText(voting, record.SelectedOptions),
			record.CastAt.UTC().Format(time.RFC3339),
		})
	}
	rows = append(rows,
		[]string{},
		[]string{},
		[]string{"Option statistics"},
		[]string{"Option", "Votes", "Percentage"},
	)
	for _, result := range entities.Tally(voting) {
		rows = append(rows, []string{result.Option, strconv.Itoa(result.Votes), result.Percentage + "%"})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing results csv: %w", err)
	}
	return nil
}

func selectedOptionText(voting entities.Voting, indices []int) string {
	labels := make([]string, 0, len(indices))
	for _, index := range indices {
		if index < 0 || index >= len(voting.Options) {
			labels = append(labels, "unknown")
			continue
		}
		labels = append(labels, voting.Options[index])
	}
	return strings.Join(labels, "; ")
}
