package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

func sheetWithRows(t *testing.T, rows [][]string) *workbook.Sheet {
	t.Helper()
	model := workbook.NewModel("test.xlsx", map[string][][]string{"IS": rows}, nil)
	sh := model.Sheet("IS")
	require.NotNil(t, sh)
	return sh
}

func TestPeriodDetector_Detect(t *testing.T) {
	detector := NewPeriodDetector(DefaultDetectorConfig(), nil)

	tests := []struct {
		name       string
		rows       [][]string
		wantRow    int
		wantLabels []string
	}{
		{
			name: "header on first row",
			rows: [][]string{
				{"Line Item", "Q1 2024", "Q2 2024", "Q3 2024", "Q4 2024"},
				{"Revenue", "100", "110", "120", "130"},
			},
			wantRow:    1,
			wantLabels: []string{"Q1 2024", "Q2 2024", "Q3 2024", "Q4 2024"},
		},
		{
			name: "header below title rows",
			rows: [][]string{
				{"Acme Corp Model"},
				{"All figures in $mm"},
				{"", "FY2023", "FY2024", "FY2025E"},
				{"Revenue", "100", "110", "120"},
			},
			wantRow:    3,
			wantLabels: []string{"FY2023", "FY2024", "FY2025E"},
		},
		{
			name: "tie goes to earliest row",
			rows: [][]string{
				{"", "1Q24", "2Q24", "3Q24"},
				{"", "1Q25", "2Q25", "3Q25"},
			},
			wantRow:    1,
			wantLabels: []string{"1Q24", "2Q24", "3Q24"},
		},
		{
			name: "densest row wins over earlier sparse row",
			rows: [][]string{
				{"", "2023", "2024", "garbage"},
				{"", "1Q24", "2Q24", "3Q24", "4Q24"},
			},
			wantRow:    2,
			wantLabels: []string{"1Q24", "2Q24", "3Q24", "4Q24"},
		},
		{
			name: "labels kept verbatim in column order",
			rows: [][]string{
				{"Item", "", "FY 2024", "", "Q1 2025", "Mar-25"},
			},
			wantRow:    1,
			wantLabels: []string{"FY 2024", "Q1 2025", "Mar-25"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := sheetWithRows(t, tt.rows)
			row, periods, err := detector.Detect(sh)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRow, row)

			labels := make([]string, len(periods))
			for i, p := range periods {
				labels[i] = p.Label
				if i > 0 {
					assert.Greater(t, p.ColumnIndex, periods[i-1].ColumnIndex)
				}
			}
			assert.Equal(t, tt.wantLabels, labels)
		})
	}
}

func TestPeriodDetector_NoHeader(t *testing.T) {
	detector := NewPeriodDetector(DefaultDetectorConfig(), nil)

	tests := []struct {
		name string
		rows [][]string
	}{
		{
			name: "only two period cells never qualifies",
			rows: [][]string{{"", "2023", "2024"}},
		},
		{
			name: "no period tokens at all",
			rows: [][]string{
				{"Assumptions"},
				{"Growth", "5%", "6%"},
			},
		},
		{
			name: "header beyond scan window",
			rows: [][]string{
				{}, {}, {}, {}, {}, {}, {}, {}, {}, {},
				{"", "2023", "2024", "2025"},
			},
		},
		{
			name: "phone numbers are not years",
			rows: [][]string{{"Contact", "555-123-4567", "555-123-4568", "555-123-4569"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := sheetWithRows(t, tt.rows)
			_, _, err := detector.Detect(sh)
			require.Error(t, err)
			var headerErr *NoPeriodHeaderError
			assert.ErrorAs(t, err, &headerErr)
			assert.Equal(t, "IS", headerErr.Sheet)
		})
	}
}

func TestPeriodDetector_WithTemplates(t *testing.T) {
	base := NewPeriodDetector(DefaultDetectorConfig(), nil)
	sh := sheetWithRows(t, [][]string{
		{"", "P1-24", "P2-24", "P3-24"},
	})

	_, _, err := base.Detect(sh)
	require.Error(t, err, "custom period shape should not match out of the box")

	extended, err := base.WithTemplates([]domain.PeriodTemplate{
		{Name: "internal-period", Pattern: `^P\d{1,2}-\d{2}$`, Example: "P1-24", Type: "monthly"},
	})
	require.NoError(t, err)

	row, periods, err := extended.Detect(sh)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Len(t, periods, 3)

	// Built-in patterns stay active alongside templates.
	std := sheetWithRows(t, [][]string{{"", "FY2023", "FY2024", "FY2025"}})
	_, periods, err = extended.Detect(std)
	require.NoError(t, err)
	assert.Len(t, periods, 3)
}

func TestPeriodDetector_InvalidTemplate(t *testing.T) {
	base := NewPeriodDetector(DefaultDetectorConfig(), nil)
	_, err := base.WithTemplates([]domain.PeriodTemplate{
		{Name: "broken", Pattern: `[unclosed`},
	})
	assert.Error(t, err)
}

func TestSuggestTemplates(t *testing.T) {
	suggestions := SuggestTemplates([]string{"FY1Q25", "FY2Q25", "1Q26E", "random text", ""})

	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"fiscal-quarter", "quarter-estimate"}, names)
	assert.Equal(t, "FY1Q25", suggestions[0].Example)
}
