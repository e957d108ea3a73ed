// This program computes per-tree leaf fitting statistics for a trained
// oblivious-tree ensemble over its training pool and writes them as JSON.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/treestat/treestat/ensemble"
	"github.com/treestat/treestat/importance"
	"github.com/treestat/treestat/pkg/errors"
	"github.com/treestat/treestat/pkg/log"
)

func main() {
	modelFile := flag.String(
		"model",
		"",
		"Path to the model JSON file",
	)

	poolFile := flag.String(
		"pool",
		"",
		"Path to the pool CSV file (per row: feature values, label, optional weight)",
	)

	outputFile := flag.String(
		"output",
		"",
		"Path for the statistics JSON output (default stdout)",
	)

	verbosity := flag.String(
		"verbosity",
		"info",
		"Log level: debug, info, warn or error",
	)

	flag.Parse()

	log.Configure(os.Stderr, *verbosity)
	logger := log.GetLoggerWithName("treestat.cli")

	if *modelFile == "" || *poolFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*modelFile, *poolFile, *outputFile); err != nil {
		logger.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
}

func run(modelFile, poolFile, outputFile string) error {
	model, err := ensemble.LoadModelFromJSON(modelFile)
	if err != nil {
		return err
	}

	pool, err := loadPool(poolFile, model.NumFeatures)
	if err != nil {
		return err
	}

	statistics, err := importance.EvaluateTreeStatistics(model, pool)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return errors.Wrapf(err, "creating output file %s", outputFile)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(statistics), "encoding statistics")
}

// loadPool reads a headerless CSV pool. Each row holds numFeatures feature
// values followed by the label and an optional weight; either every row
// carries a weight or none does.
func loadPool(path string, numFeatures int) (*ensemble.Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pool file %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var (
		features []float64
		labels   []float64
		weights  []float64
	)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading pool row %d", row)
		}
		hasWeight := len(record) == numFeatures+2
		if !hasWeight && len(record) != numFeatures+1 {
			return nil, errors.NewDimensionError("loadPool", numFeatures+1, len(record), 1)
		}
		if row > 0 && hasWeight != (len(weights) > 0) {
			return nil, errors.Newf("treestat: pool row %d: inconsistent weight column", row)
		}

		values := make([]float64, len(record))
		for i, field := range record {
			values[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing pool row %d column %d", row, i)
			}
		}
		features = append(features, values[:numFeatures]...)
		labels = append(labels, values[numFeatures])
		if hasWeight {
			weights = append(weights, values[numFeatures+1])
		}
		row++
	}
	if row == 0 {
		return nil, errors.New("treestat: empty pool")
	}

	return ensemble.NewPool(mat.NewDense(row, numFeatures, features), labels, weights)
}
