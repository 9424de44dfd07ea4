package objectdetection

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// LabelNames maps class indices to display names.
type LabelNames []string

// Name returns the display name of label, or "class N" when it has none.
func (n LabelNames) Name(label int) string {
	if label >= 0 && label < len(n) && n[label] != "" {
		return n[label]
	}
	return "class " + strconv.Itoa(label)
}

// Index returns the class index with the given name, matched case-insensitively.
func (n LabelNames) Index(name string) (int, bool) {
	for i, candidate := range n {
		if strings.EqualFold(candidate, name) {
			return i, true
		}
	}
	return 0, false
}

// ReadLabelFile reads one label per line. Blank lines keep their index with no name.
func ReadLabelFile(path string) (LabelNames, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open label file")
	}
	defer goutils.UncheckedErrorFunc(f.Close)

	var labels LabelNames
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading label file %q", path)
	}
	return labels, nil
}
