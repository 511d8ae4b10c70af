package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter reads operator answers line by line. EOF (a closed or exhausted
// input) answers every remaining question with its default.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask prints the label and returns the trimmed answer, or fallback when the
// answer is blank or input is exhausted.
func (p *prompter) ask(label, fallback string) string {
	fmt.Fprint(p.out, label)
	if !p.in.Scan() {
		fmt.Fprintln(p.out)
		return fallback
	}
	answer := strings.TrimSpace(p.in.Text())
	if answer == "" {
		return fallback
	}
	return answer
}

// yes asks a y/n question. Anything other than "y" (case-insensitive)
// counts as no.
func (p *prompter) yes(label string, fallback bool) bool {
	def := "n"
	if fallback {
		def = "y"
	}
	return strings.EqualFold(p.ask(label, def), "y")
}

// selection parses a comma separated list of 1-based numbers, or "all".
// Out-of-range numbers are reported and skipped, matching the forgiving
// behavior an operator expects from a long menu.
func (p *prompter) selection(label string, max int) (picks []int, all bool) {
	answer := strings.ToLower(p.ask(label, ""))
	if answer == "all" {
		return nil, true
	}
	for _, part := range strings.Split(answer, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			fmt.Fprintf(p.out, "Ignoring %q: not a number\n", part)
			continue
		}
		if n < 1 || n > max {
			fmt.Fprintf(p.out, "Selection %d is out of range\n", n)
			continue
		}
		picks = append(picks, n)
	}
	return picks, false
}
