package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadFloatPairs reads a whitespace separated two-column table. Empty lines
// and lines starting with '#' are skipped.
func ReadFloatPairs(filename string) ([][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	var result [][]float64

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		parts := strings.Fields(line)

		// Skip empty lines
		if len(parts) == 0 {
			continue
		}

		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid format in line: %q - expected 2 numbers, got %d", line, len(parts))
		}

		x, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing float in line %q: %w", line, err)
		}

		y, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing float in line %q: %w", line, err)
		}

		result = append(result, []float64{x, y})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return result, nil
}

func GetFilename(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OpenFile creates <outputPath>/<subdir>/<name>.<ext> when makeDir is set and
// <outputPath>/<name>_<subdir>.<ext> otherwise.
func OpenFile(makeDir bool, outputPath, subdir, name, ext string) (*os.File, error) {
	if makeDir && subdir != "" && subdir != "." {
		if err := os.MkdirAll(filepath.Join(outputPath, subdir), 0750); err != nil {
			return nil, err
		}
		return os.Create(filepath.Join(outputPath, subdir, name+"."+ext))
	}
	if err := os.MkdirAll(outputPath, 0750); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(outputPath, name+"_"+subdir+"."+ext))
}
