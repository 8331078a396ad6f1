// Package crap4j writes the Crap4j XML report of method risk scores.
package crap4j

import (
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/user/phpcov/internal/node"
	"github.com/user/phpcov/internal/report"
)

// DefaultThreshold is the CRAP score from which a method counts as crappy
const DefaultThreshold = 30

type resultXML struct {
	XMLName   xml.Name    `xml:"crap_result"`
	Project   string      `xml:"project"`
	Timestamp string      `xml:"timestamp"`
	Stats     statsXML    `xml:"stats"`
	Methods   []methodXML `xml:"methods>method"`
}

type statsXML struct {
	Name              string `xml:"name"`
	MethodCount       int    `xml:"methodCount"`
	CrapMethodCount   int    `xml:"crapMethodCount"`
	CrapLoad          string `xml:"crapLoad"`
	TotalCrap         string `xml:"totalCrap"`
	CrapMethodPercent string `xml:"crapMethodPercent"`
}

type methodXML struct {
	Package         string `xml:"package"`
	ClassName       string `xml:"className"`
	MethodName      string `xml:"methodName"`
	MethodSignature string `xml:"methodSignature"`
	FullMethod      string `xml:"fullMethod"`
	Crap            string `xml:"crap"`
	Complexity      int    `xml:"complexity"`
	Coverage        string `xml:"coverage"`
	CrapLoad        string `xml:"crapLoad"`
}

// Renderer produces Crap4j XML. A zero Threshold means DefaultThreshold
// and a zero Time means now.
type Renderer struct {
	Threshold int
	Name      string
	Time      time.Time
}

func (r Renderer) threshold() int {
	if r.Threshold <= 0 {
		return DefaultThreshold
	}
	return r.Threshold
}

// CrapLoad estimates the work needed to bring a method below the threshold
func (r Renderer) CrapLoad(crap node.Crap, ccn int, coverage float64) float64 {
	threshold := float64(r.threshold())
	if float64(crap) < threshold {
		return 0
	}
	return float64(ccn)*(1-coverage/100) + float64(ccn)/threshold
}

func format(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Render returns the report for root
func (r Renderer) Render(root *node.Directory) ([]byte, error) {
	doc := resultXML{
		Project:   r.Name,
		Timestamp: report.Time(r.Time).Format(time.DateTime),
	}

	var totalCrap, totalLoad float64
	crappy := 0
	for _, f := range root.AllFiles() {
		namespace := "global"
		for _, c := range append(slices.Clone(f.Classes()), f.Traits()...) {
			if c.Namespace != "" {
				namespace = c.Namespace
			}
			for _, m := range c.Methods {
				load := r.CrapLoad(m.CRAP, m.CCN, m.Coverage)
				totalCrap += float64(m.CRAP)
				totalLoad += load
				if float64(m.CRAP) >= float64(r.threshold()) {
					crappy++
				}
				doc.Methods = append(doc.Methods, methodXML{
					Package:         namespace,
					ClassName:       c.Name,
					MethodName:      m.Name,
					MethodSignature: m.Signature,
					FullMethod:      m.Signature,
					Crap:            format(float64(m.CRAP)),
					Complexity:      m.CCN,
					Coverage:        format(m.Coverage),
					CrapLoad:        strconv.FormatFloat(math.Round(load), 'f', -1, 64),
				})
			}
		}
	}

	percent := 0.0
	if len(doc.Methods) > 0 {
		percent = 100 * float64(crappy) / float64(len(doc.Methods))
	}
	doc.Stats = statsXML{
		Name:              "Method Crap Stats",
		MethodCount:       len(doc.Methods),
		CrapMethodCount:   crappy,
		CrapLoad:          strconv.FormatFloat(math.Round(totalLoad), 'f', -1, 64),
		TotalCrap:         format(totalCrap),
		CrapMethodPercent: format(percent),
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode crap4j report: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// Write renders root into the file target
func (r Renderer) Write(fs afero.Fs, root *node.Directory, target string) error {
	out, err := r.Render(root)
	if err != nil {
		return err
	}
	return report.WriteFile(fs, target, out)
}
