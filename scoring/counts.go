package scoring

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// Counts holds true positive, false positive and false negative counts per entity type.
type Counts struct {
	TP map[string]int `json:"tp"`
	FP map[string]int `json:"fp"`
	FN map[string]int `json:"fn"`
}

// Scores are precision, recall and F1 over some set of entities.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

func NewCounts() *Counts {
	return &Counts{
		TP: make(map[string]int),
		FP: make(map[string]int),
		FN: make(map[string]int),
	}
}

func (c *Counts) Add(other *Counts) {
	for k, v := range other.TP {
		c.TP[k] += v
	}
	for k, v := range other.FP {
		c.FP[k] += v
	}
	for k, v := range other.FN {
		c.FN[k] += v
	}
}

func (c *Counts) Clone() *Counts {
	clone := NewCounts()
	clone.Add(c)
	return clone
}

// Types lists every entity type with a count, sorted.
func (c *Counts) Types() []string {
	set := make(map[string]bool)
	for _, m := range []map[string]int{c.TP, c.FP, c.FN} {
		for k := range m {
			set[k] = true
		}
	}
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func scores(tp, fp, fn int) Scores {
	// nothing predicted scores 0 precision; nothing to find is fully recalled
	var s Scores
	if tp+fp > 0 {
		s.Precision = float64(tp) / float64(tp+fp)
	}
	s.Recall = 1
	if tp+fn > 0 {
		s.Recall = float64(tp) / float64(tp+fn)
	}
	if s.Precision > 0 && s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

func (c *Counts) Scores(entityType string) Scores {
	return scores(c.TP[entityType], c.FP[entityType], c.FN[entityType])
}

func (c *Counts) Precision(entityType string) float64 {
	return c.Scores(entityType).Precision
}

func (c *Counts) Recall(entityType string) float64 {
	return c.Scores(entityType).Recall
}

func (c *Counts) F1(entityType string) float64 {
	return c.Scores(entityType).F1
}

func sum(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// Micro scores the counts summed over all types.
func (c *Counts) Micro() Scores {
	return scores(sum(c.TP), sum(c.FP), sum(c.FN))
}

// Macro averages the per-type scores. With no types it equals the scores of empty counts.
func (c *Counts) Macro() Scores {
	types := c.Types()
	if len(types) == 0 {
		return scores(0, 0, 0)
	}
	var avg Scores
	for _, t := range types {
		s := c.Scores(t)
		avg.Precision += s.Precision
		avg.Recall += s.Recall
		avg.F1 += s.F1
	}
	n := float64(len(types))
	return Scores{Precision: avg.Precision / n, Recall: avg.Recall / n, F1: avg.F1 / n}
}

// Report writes a per-type table followed by the micro-averaged totals.
func (c *Counts) Report(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintln(tw, "Entity\tP\tR\tF1\tTP\tFP\tFN\t"); err != nil {
		return err
	}
	row := func(name string, s Scores, tp, fp, fn int) error {
		_, err := fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%d\t%d\t%d\t\n", name, s.Precision, s.Recall, s.F1, tp, fp, fn)
		return err
	}
	for _, t := range c.Types() {
		if err := row(t, c.Scores(t), c.TP[t], c.FP[t], c.FN[t]); err != nil {
			return err
		}
	}
	if err := row("Totals", c.Micro(), sum(c.TP), sum(c.FP), sum(c.FN)); err != nil {
		return err
	}
	return tw.Flush()
}
