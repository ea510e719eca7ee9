// Package romscfg implements a round-tripping codec for the Fortran-style
// `.in` runtime configuration file that drives the ROMS scientific model:
// ParseFile/Parse decode a keyed multi-section text file into a strongly
// typed Settings value, and Settings.Emit/EmitFile re-serialise it
// deterministically.
package romscfg

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
)

// CanonicalOutputRootName is fixed by the scientific model itself; any
// value parsed from an input file's output_root_name section is
// discarded and replaced with this at parse time, per the invariant
// that the field is not user-configurable despite appearing in the
// file format.
const CanonicalOutputRootName = "cstar_roms_output"

// TimeStepping holds ntimes, dt, ndtfast, ninfo in that order.
type TimeStepping struct {
	NTimes  int
	DT      int
	NDTFast int
	NInfo   int
}

// BottomDrag holds rdrg, rdrg2, zob.
type BottomDrag struct {
	RDRG  float64
	RDRG2 float64
	Zob   float64
}

// Initial holds the initial-condition record: a record count and an
// optional path to the initialisation file.
type Initial struct {
	NRRec   int
	IniName string
}

// SCoord holds vertical coordinate stretching parameters.
type SCoord struct {
	ThetaS float64
	ThetaB float64
	Tcline float64
}

// LinRhoEOS holds linear equation-of-state coefficients.
type LinRhoEOS struct {
	Tcoef float64
	T0    float64
	Scoef float64
	S0    float64
}

// MarblBiogeochemistry holds the three MARBL input file paths.
type MarblBiogeochemistry struct {
	NamelistFname  string
	TracerListFname string
	DiagListFname  string
}

// VerticalMixing holds background vertical viscosity and a per-tracer
// mixing coefficient list.
type VerticalMixing struct {
	AkvBak float64
	AktBak []float64
}

// MYBakMixing holds Mellor-Yamada 2.5 background mixing parameters.
type MYBakMixing struct {
	AkqBak float64
	Q2Nu2  float64
	Q2Nu4  float64
}

// Settings is the parsed (or programmatically constructed) content of a
// ROMS `.in` file.
type Settings struct {
	Title          string
	TimeStepping   TimeStepping
	BottomDrag     BottomDrag
	Initial        Initial
	Forcing        []string
	OutputRootName string

	SCoord               *SCoord
	Rho0                 *float64
	LinRhoEOS            *LinRhoEOS
	MarblBiogeochemistry *MarblBiogeochemistry
	LateralVisc          *float64
	Gamma2               *float64
	TracerDiff2          []float64
	VerticalMixing       *VerticalMixing
	MYBakMixing          *MYBakMixing
	SSSCorrection        *float64
	SSTCorrection        *float64
	Ubind                *float64
	VSponge              *float64
	Grid                 string
	Climatology          string
}

// ParseFile reads and parses a `.in` file from disk.
func ParseFile(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cstarerrors.NotFound("romscfg.ParseFile", err.Error())
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a `.in` file's content from r.
//
// Parsing proceeds in two passes: first the raw text is split into
// named sections (header line containing ':' up to the next header or
// EOF), each held as its trimmed, non-comment, non-blank lines; then
// each known section name is interpreted per its own schema. Unknown
// sections are ignored; missing optional sections leave the
// corresponding field unset.
func Parse(r io.Reader) (*Settings, error) {
	sections, err := scanSections(r)
	if err != nil {
		return nil, err
	}

	title, ok := sections["title"]
	if !ok || len(title) == 0 {
		return nil, cstarerrors.Validation("romscfg.Parse", "missing required section: title")
	}

	timeStepping, err := singleLineInts(sections, "time_stepping", 4)
	if err != nil {
		return nil, err
	}
	bottomDrag, err := singleLineFloats(sections, "bottom_drag", 3)
	if err != nil {
		return nil, err
	}

	initialLines, ok := sections["initial"]
	if !ok || len(initialLines) == 0 {
		return nil, cstarerrors.Validation("romscfg.Parse", "missing required section: initial")
	}
	nrrec, err := strconv.Atoi(strings.TrimSpace(initialLines[0]))
	if err != nil {
		return nil, cstarerrors.Validation("romscfg.Parse", fmt.Sprintf("initial: nrrec not an integer: %v", err))
	}
	iniName := ""
	if len(initialLines) > 1 {
		iniName = initialLines[1]
	}

	forcing := append([]string(nil), sections["forcing"]...)

	s := &Settings{
		Title:          title[0],
		TimeStepping:   TimeStepping{NTimes: timeStepping[0], DT: timeStepping[1], NDTFast: timeStepping[2], NInfo: timeStepping[3]},
		BottomDrag:     BottomDrag{RDRG: bottomDrag[0], RDRG2: bottomDrag[1], Zob: bottomDrag[2]},
		Initial:        Initial{NRRec: nrrec, IniName: iniName},
		Forcing:        forcing,
		OutputRootName: CanonicalOutputRootName,
	}

	if v, ok := sections["S-coord"]; ok {
		f, err := parseFloats(v)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "S-coord: "+err.Error())
		}
		if len(f) != 3 {
			return nil, cstarerrors.Validation("romscfg.Parse", "S-coord: expected 3 values")
		}
		s.SCoord = &SCoord{ThetaS: f[0], ThetaB: f[1], Tcline: f[2]}
	}
	if v, ok := sections["rho0"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "rho0: "+err.Error())
		}
		s.Rho0 = &f
	}
	if v, ok := sections["lin_rho_eos"]; ok {
		f, err := parseFloats(v)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "lin_rho_eos: "+err.Error())
		}
		if len(f) != 4 {
			return nil, cstarerrors.Validation("romscfg.Parse", "lin_rho_eos: expected 4 values")
		}
		s.LinRhoEOS = &LinRhoEOS{Tcoef: f[0], T0: f[1], Scoef: f[2], S0: f[3]}
	}
	if v, ok := sections["MARBL_biogeochemistry"]; ok {
		if len(v) != 3 {
			return nil, cstarerrors.Validation("romscfg.Parse", "MARBL_biogeochemistry: expected 3 file paths")
		}
		s.MarblBiogeochemistry = &MarblBiogeochemistry{NamelistFname: v[0], TracerListFname: v[1], DiagListFname: v[2]}
	}
	if v, ok := sections["lateral_visc"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "lateral_visc: "+err.Error())
		}
		s.LateralVisc = &f
	}
	if v, ok := sections["gamma2"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "gamma2: "+err.Error())
		}
		s.Gamma2 = &f
	}
	if v, ok := sections["tracer_diff2"]; ok {
		f, err := parseFloats(v)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "tracer_diff2: "+err.Error())
		}
		s.TracerDiff2 = f
	}
	if v, ok := sections["MY_bak_mixing"]; ok {
		f, err := parseFloats(v)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "MY_bak_mixing: "+err.Error())
		}
		if len(f) != 3 {
			return nil, cstarerrors.Validation("romscfg.Parse", "MY_bak_mixing: expected 3 values")
		}
		s.MYBakMixing = &MYBakMixing{AkqBak: f[0], Q2Nu2: f[1], Q2Nu4: f[2]}
	}
	if v, ok := sections["vertical_mixing"]; ok {
		f, err := parseFloats(v)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "vertical_mixing: "+err.Error())
		}
		if len(f) < 1 {
			return nil, cstarerrors.Validation("romscfg.Parse", "vertical_mixing: expected at least 1 value")
		}
		s.VerticalMixing = &VerticalMixing{AkvBak: f[0], AktBak: append([]float64(nil), f[1:]...)}
	}
	if v, ok := sections["SSS_correction"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "SSS_correction: "+err.Error())
		}
		s.SSSCorrection = &f
	}
	if v, ok := sections["SST_correction"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "SST_correction: "+err.Error())
		}
		s.SSTCorrection = &f
	}
	if v, ok := sections["ubind"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "ubind: "+err.Error())
		}
		s.Ubind = &f
	}
	if v, ok := sections["v_sponge"]; ok && len(v) > 0 {
		f, err := parseFloat(v[0])
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", "v_sponge: "+err.Error())
		}
		s.VSponge = &f
	}
	if v, ok := sections["grid"]; ok && len(v) > 0 {
		s.Grid = v[0]
	}
	if v, ok := sections["climatology"]; ok && len(v) > 0 {
		s.Climatology = v[0]
	}

	return s, nil
}

// scanSections splits a `.in` file's content into named sections. A
// header line is any non-comment, non-blank line containing ':'; the
// text before ':' is the section name. Every non-comment, non-blank
// line up to the next header (or EOF) belongs to that section, trimmed
// of surrounding whitespace.
func scanSections(r io.Reader) (map[string][]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, cstarerrors.Subprocess("romscfg.scanSections", "read", err.Error(), err)
	}

	sections := map[string][]string{}
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "!") {
			i++
			continue
		}
		if !strings.Contains(line, ":") {
			i++
			continue
		}
		name := strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
		i++
		var body []string
		for i < len(lines) {
			l := strings.TrimSpace(lines[i])
			if strings.Contains(l, ":") && !strings.HasPrefix(l, "!") {
				break
			}
			if l != "" && !strings.HasPrefix(l, "!") {
				body = append(body, l)
			}
			i++
		}
		sections[name] = body
	}
	return sections, nil
}

func singleLineInts(sections map[string][]string, name string, n int) ([]int, error) {
	lines, ok := sections[name]
	if !ok || len(lines) == 0 {
		return nil, cstarerrors.Validation("romscfg.Parse", "missing required section: "+name)
	}
	fields := strings.Fields(lines[0])
	if len(fields) != n {
		return nil, cstarerrors.Validation("romscfg.Parse", fmt.Sprintf("%s: expected %d values, got %d", name, n, len(fields)))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, cstarerrors.Validation("romscfg.Parse", fmt.Sprintf("%s: %v", name, err))
		}
		out[i] = v
	}
	return out, nil
}

func singleLineFloats(sections map[string][]string, name string, n int) ([]float64, error) {
	lines, ok := sections[name]
	if !ok || len(lines) == 0 {
		return nil, cstarerrors.Validation("romscfg.Parse", "missing required section: "+name)
	}
	f, err := parseFloats(lines[:1])
	if err != nil {
		return nil, cstarerrors.Validation("romscfg.Parse", name+": "+err.Error())
	}
	if len(f) != n {
		return nil, cstarerrors.Validation("romscfg.Parse", fmt.Sprintf("%s: expected %d values, got %d", name, n, len(f)))
	}
	return f, nil
}

// parseFloats parses every whitespace-separated token across all given
// lines as a float, normalising Fortran's 'D' exponent marker to 'E'
// first.
func parseFloats(lines []string) ([]float64, error) {
	var out []float64
	for _, line := range lines {
		for _, tok := range strings.Fields(line) {
			f, err := parseFloat(tok)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func parseFloat(tok string) (float64, error) {
	normalized := strings.ReplaceAll(strings.ReplaceAll(tok, "D", "E"), "d", "e")
	f, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q: %w", tok, err)
	}
	return f, nil
}

// EmitFile writes the settings to path as a `.in` file.
func (s *Settings) EmitFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return cstarerrors.Subprocess("romscfg.EmitFile", "create "+path, err.Error(), err)
	}
	defer f.Close()
	return s.Emit(f)
}

// Emit writes the settings to w in `.in` format. output_root_name is
// always written as CanonicalOutputRootName, regardless of what the
// Settings value currently holds, since the field is not meaningfully
// user-settable.
func (s *Settings) Emit(w io.Writer) error {
	bw := bufio.NewWriter(w)

	writeScalarSection(bw, "title", s.Title)
	writeInlineSection(bw, "time_stepping",
		[]string{"ntimes", "dt", "ndtfast", "ninfo"},
		[]string{formatInt(s.TimeStepping.NTimes), formatInt(s.TimeStepping.DT), formatInt(s.TimeStepping.NDTFast), formatInt(s.TimeStepping.NInfo)})
	writeInlineSection(bw, "bottom_drag",
		[]string{"rdrg", "rdrg2", "zob"},
		[]string{formatFloat(s.BottomDrag.RDRG), formatFloat(s.BottomDrag.RDRG2), formatFloat(s.BottomDrag.Zob)})
	writeMultiLineSection(bw, "initial", []string{formatInt(s.Initial.NRRec), s.Initial.IniName})
	writeMultiLineSection(bw, "forcing", s.Forcing)
	writeScalarSection(bw, "output_root_name", CanonicalOutputRootName)

	if s.SCoord != nil {
		writeInlineSection(bw, "S-coord",
			[]string{"theta_s", "theta_b", "tcline"},
			[]string{formatFloat(s.SCoord.ThetaS), formatFloat(s.SCoord.ThetaB), formatFloat(s.SCoord.Tcline)})
	}
	if s.Grid != "" {
		writeScalarSection(bw, "grid", s.Grid)
	}
	if s.MarblBiogeochemistry != nil {
		writeMultiLineSection(bw, "MARBL_biogeochemistry", []string{
			s.MarblBiogeochemistry.NamelistFname,
			s.MarblBiogeochemistry.TracerListFname,
			s.MarblBiogeochemistry.DiagListFname,
		})
	}
	if s.LateralVisc != nil {
		writeScalarSection(bw, "lateral_visc", formatFloat(*s.LateralVisc))
	}
	if s.Rho0 != nil {
		writeScalarSection(bw, "rho0", formatFloat(*s.Rho0))
	}
	if s.LinRhoEOS != nil {
		writeInlineSection(bw, "lin_rho_eos",
			[]string{"Tcoef", "T0", "Scoef", "S0"},
			[]string{formatFloat(s.LinRhoEOS.Tcoef), formatFloat(s.LinRhoEOS.T0), formatFloat(s.LinRhoEOS.Scoef), formatFloat(s.LinRhoEOS.S0)})
	}
	if s.Gamma2 != nil {
		writeScalarSection(bw, "gamma2", formatFloat(*s.Gamma2))
	}
	if s.TracerDiff2 != nil {
		writeScalarSection(bw, "tracer_diff2", formatFloatList(s.TracerDiff2))
	}
	if s.VerticalMixing != nil {
		writeInlineSection(bw, "vertical_mixing",
			[]string{"Akv_bak", "Akt_bak"},
			[]string{formatFloat(s.VerticalMixing.AkvBak), formatFloatList(s.VerticalMixing.AktBak)})
	}
	if s.MYBakMixing != nil {
		writeInlineSection(bw, "MY_bak_mixing",
			[]string{"Akq_bak", "q2nu2", "q2nu4"},
			[]string{formatFloat(s.MYBakMixing.AkqBak), formatFloat(s.MYBakMixing.Q2Nu2), formatFloat(s.MYBakMixing.Q2Nu4)})
	}
	if s.SSSCorrection != nil {
		writeScalarSection(bw, "SSS_correction", formatFloat(*s.SSSCorrection))
	}
	if s.SSTCorrection != nil {
		writeScalarSection(bw, "SST_correction", formatFloat(*s.SSTCorrection))
	}
	if s.Ubind != nil {
		writeScalarSection(bw, "ubind", formatFloat(*s.Ubind))
	}
	if s.VSponge != nil {
		writeScalarSection(bw, "v_sponge", formatFloat(*s.VSponge))
	}
	if s.Climatology != "" {
		writeScalarSection(bw, "climatology", s.Climatology)
	}

	return bw.Flush()
}

func writeScalarSection(w *bufio.Writer, name, value string) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "    %s\n\n", value)
}

func writeInlineSection(w *bufio.Writer, name string, keys, values []string) {
	fmt.Fprintf(w, "%s: %s\n", name, strings.Join(keys, " "))
	fmt.Fprintf(w, "    %s\n\n", strings.Join(values, "    "))
}

func writeMultiLineSection(w *bufio.Writer, name string, values []string) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "    %s\n\n", strings.Join(values, "\n    "))
}

// formatInt renders an integer; it exists purely so callers can treat
// numeric formatting uniformly alongside formatFloat.
func formatInt(v int) string { return strconv.Itoa(v) }

// formatFloat renders a float using scientific notation with an
// 'E0'-trimmed exponent when the magnitude is very small or very
// large, the bare value otherwise, and the literal "0." for zero —
// matching the reference implementation's formatting convention
// exactly (including the nonstandard zero case).
func formatFloat(v float64) string {
	if v == 0.0 {
		return "0."
	}
	abs := math.Abs(v)
	if abs < 1e-2 || abs >= 1e4 {
		s := strconv.FormatFloat(v, 'E', 6, 64)
		return strings.Replace(s, "E+00", "E0", 1)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatList(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}
