package analyzer

import (
	"errors"
	"math"
	"testing"

	"github.com/okulov/selftrack/internal/dataset"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	d := dataset.New("city", "temp")
	d.AppendRow(dataset.Text("oslo"), dataset.Number(2))
	d.AppendRow(dataset.Text("oslo"), dataset.Number(4))
	d.AppendRow(dataset.Text("rome"), dataset.Number(18))
	d.AppendRow(dataset.Text("rome"), dataset.Missing())
	return d
}

func TestSummarize(t *testing.T) {
	s := Summarize(testDataset(t))

	if s.Rows != 4 || s.Cols != 2 {
		t.Fatalf("shape = %dx%d, want 4x2", s.Rows, s.Cols)
	}

	city := s.Columns[0]
	if city.Kind != dataset.KindText || city.Count != 4 || city.Missing != 0 {
		t.Errorf("city summary = %+v", city)
	}
	if city.Numeric != nil {
		t.Error("text column should have no numeric stats")
	}

	temp := s.Columns[1]
	if temp.Kind != dataset.KindNumber || temp.Count != 3 || temp.Missing != 1 {
		t.Errorf("temp summary = %+v", temp)
	}
	if temp.MissingPct != 25 {
		t.Errorf("MissingPct = %g, want 25", temp.MissingPct)
	}
	if temp.Numeric == nil {
		t.Fatal("numeric column should have stats")
	}
	if temp.Numeric.Min != 2 || temp.Numeric.Max != 18 || temp.Numeric.Mean != 8 {
		t.Errorf("stats = %+v", temp.Numeric)
	}
	// Sample std of {2, 4, 18}.
	want := math.Sqrt(((2-8.0)*(2-8.0) + (4-8.0)*(4-8.0) + (18-8.0)*(18-8.0)) / 2)
	if math.Abs(temp.Numeric.Std-want) > 1e-9 {
		t.Errorf("std = %g, want %g", temp.Numeric.Std, want)
	}
}

func TestSummarizeEmptyDataset(t *testing.T) {
	s := Summarize(dataset.New("a"))
	if s.Rows != 0 || s.Columns[0].MissingPct != 0 {
		t.Errorf("empty dataset summary = %+v", s)
	}
}

func TestSeriesLine(t *testing.T) {
	series, err := SeriesForChart(testDataset(t), "city", "temp", ChartLine)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	// Row with missing y is skipped; order preserved.
	if len(series.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(series.Points))
	}
	if series.Points[2].X.Text() != "rome" || series.Points[2].Y != 18 {
		t.Errorf("last point = %+v", series.Points[2])
	}
}

func TestSeriesBarGroupsByMean(t *testing.T) {
	series, err := SeriesForChart(testDataset(t), "city", "temp", ChartBar)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	if len(series.Points) != 2 {
		t.Fatalf("groups = %d, want 2", len(series.Points))
	}
	if series.Points[0].X.Text() != "oslo" || series.Points[0].Y != 3 {
		t.Errorf("oslo group = %+v, want mean 3", series.Points[0])
	}
	if series.Points[1].X.Text() != "rome" || series.Points[1].Y != 18 {
		t.Errorf("rome group = %+v, want mean 18", series.Points[1])
	}
}

func TestSeriesHistogram(t *testing.T) {
	d := dataset.New("x", "v")
	for i := 0; i < 20; i++ {
		d.AppendRow(dataset.Number(float64(i)), dataset.Number(float64(i)))
	}

	series, err := SeriesForChart(d, "x", "v", ChartHistogram)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	if len(series.Bins) != histogramBins {
		t.Fatalf("bins = %d, want %d", len(series.Bins), histogramBins)
	}
	total := 0
	for _, b := range series.Bins {
		total += b.Count
	}
	if total != 20 {
		t.Errorf("binned values = %d, want 20", total)
	}
	// Max value lands in the last bin, not off the end: [17.1, 19] holds 18 and 19.
	if series.Bins[len(series.Bins)-1].Count != 2 {
		t.Errorf("last bin = %+v, want count 2", series.Bins[len(series.Bins)-1])
	}
}

func TestSeriesHistogramSingleValue(t *testing.T) {
	d := dataset.New("x", "v")
	d.AppendRow(dataset.Number(1), dataset.Number(5))
	d.AppendRow(dataset.Number(2), dataset.Number(5))

	series, err := SeriesForChart(d, "x", "v", ChartHistogram)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	if len(series.Bins) != 1 || series.Bins[0].Count != 2 {
		t.Errorf("bins = %+v, want one bin of 2", series.Bins)
	}
}

func TestSeriesBox(t *testing.T) {
	d := dataset.New("x", "v")
	for _, f := range []float64{1, 2, 3, 4, 5, 6, 7, 8} {
		d.AppendRow(dataset.Number(f), dataset.Number(f))
	}

	series, err := SeriesForChart(d, "x", "v", ChartBox)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	box := series.Box
	if box == nil {
		t.Fatal("box stats missing")
	}
	if box.Min != 1 || box.Max != 8 || box.Median != 4.5 {
		t.Errorf("box = %+v", box)
	}
	if box.Q1 != 2.5 || box.Q3 != 6.5 {
		t.Errorf("quartiles = %g, %g, want 2.5 and 6.5", box.Q1, box.Q3)
	}
}

func TestSeriesErrors(t *testing.T) {
	d := testDataset(t)

	if _, err := SeriesForChart(d, "nope", "temp", ChartLine); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("unknown x error = %v, want ErrColumnNotFound", err)
	}
	if _, err := SeriesForChart(d, "city", "nope", ChartLine); !errors.Is(err, dataset.ErrColumnNotFound) {
		t.Errorf("unknown y error = %v, want ErrColumnNotFound", err)
	}
	for _, kind := range []ChartKind{ChartScatter, ChartHistogram, ChartBox} {
		if _, err := SeriesForChart(d, "temp", "city", kind); !errors.Is(err, dataset.ErrTypeMismatch) {
			t.Errorf("%s with text y error = %v, want ErrTypeMismatch", kind, err)
		}
	}
}

func TestParseChartKind(t *testing.T) {
	if _, err := ParseChartKind("pie"); err == nil {
		t.Error("pie should be rejected")
	}
	kind, err := ParseChartKind(" Bar ")
	if err != nil || kind != ChartBar {
		t.Errorf("ParseChartKind(Bar) = %v, %v", kind, err)
	}
}
