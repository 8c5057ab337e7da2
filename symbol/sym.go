package symbol

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	reFormatVersion = regexp.MustCompile(`^FormatVersion\s*=\s*(.+)$`)
	reEnumDecl      = regexp.MustCompile(`^(?:enum|Enum)\s*=?\s*(\w+)\((.*)\)\s*$`)
	reEnumPair      = regexp.MustCompile(`(-?\d+)\s*=\s*"([^"]*)"`)
	reSigDecl       = regexp.MustCompile(`^Sig=(\w+)\s+(\w+)\s+(\d+)(.*)$`)
	reMsgHeader     = regexp.MustCompile(`^\[(.+)\]\s*$`)
	reMsgType       = regexp.MustCompile(`^Type\s*=\s*(\w+)\s*$`)
	reMsgID         = regexp.MustCompile(`^ID\s*=\s*([0-9A-Fa-f]+)h\s*$`)
	reMsgDLC        = regexp.MustCompile(`^(?:DLC|Len)\s*=\s*(\d+)\s*$`)
	reSigAttach     = regexp.MustCompile(`^Sig=(\w+)\s+(\d+)\s*$`)
	reVarDecl       = regexp.MustCompile(`^Var=(\w+)\s+(\w+)\s+(\d+),(\d+)(.*)$`)
)

// symMessageBuilder accumulates a {SENDRECEIVE} block until id, name,
// and dlc are all known, per spec.md §4.F.
type symMessageBuilder struct {
	name       string
	hasType    bool
	id         uint32
	hasID      bool
	dlc        uint8
	hasDLC     bool
	inserted   bool
}

// ParseSYM parses a PCAN Symbol file (sections {SIGNALS} and
// {SENDRECEIVE}) into a Database, per spec.md §4.F.
func ParseSYM(r io.Reader) (*Database, error) {
	db := NewDatabase()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	section := ""
	signalTemplates := map[string]Signal{}
	var current *symMessageBuilder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if line == "{SIGNALS}" {
			section = "SIGNALS"
			continue
		}
		if line == "{SENDRECEIVE}" {
			section = "SENDRECEIVE"
			continue
		}

		if reFormatVersion.MatchString(line) {
			db.Version = reFormatVersion.FindStringSubmatch(line)[1]
			continue
		}

		if reEnumDecl.MatchString(line) {
			m := reEnumDecl.FindStringSubmatch(line)
			vt := &ValueTable{Name: m[1], Labels: make(map[int64]string)}
			for _, pair := range reEnumPair.FindAllStringSubmatch(m[2], -1) {
				v, _ := strconv.ParseInt(pair[1], 10, 64)
				vt.Labels[v] = pair[2]
			}
			db.ValueTables[vt.Name] = vt
			continue
		}

		switch section {
		case "SIGNALS":
			if reSigDecl.MatchString(line) {
				sig, name := parseSYMSigTemplate(line)
				signalTemplates[name] = sig
			}

		case "SENDRECEIVE":
			if reMsgHeader.MatchString(line) {
				if current != nil {
					flushSYMMessage(db, current)
				}
				name := reMsgHeader.FindStringSubmatch(line)[1]
				current = &symMessageBuilder{name: name}
				continue
			}
			if current == nil {
				continue
			}
			switch {
			case reMsgType.MatchString(line):
				// Type=Extended is parsed but, per spec.md §9 Open
				// Question (c), deliberately not used to override
				// id-kind inference.
				current.hasType = true
			case reMsgID.MatchString(line):
				m := reMsgID.FindStringSubmatch(line)
				id, err := strconv.ParseUint(m[1], 16, 32)
				if err == nil {
					current.id = uint32(id)
					current.hasID = true
				}
			case reMsgDLC.MatchString(line):
				m := reMsgDLC.FindStringSubmatch(line)
				dlc, err := strconv.ParseUint(m[1], 10, 8)
				if err == nil {
					current.dlc = uint8(dlc)
					current.hasDLC = true
				}
			case reSigAttach.MatchString(line):
				m := reSigAttach.FindStringSubmatch(line)
				tmpl, ok := signalTemplates[m[1]]
				if !ok {
					continue
				}
				start, _ := strconv.Atoi(m[2])
				tmpl.StartBit = start
				maybeInsertSYMMessage(db, current)
				if msg, ok := db.Messages[current.id]; ok && current.inserted {
					msg.Signals = append(msg.Signals, tmpl)
				}
			case reVarDecl.MatchString(line):
				sig := parseSYMVarInline(line)
				maybeInsertSYMMessage(db, current)
				if msg, ok := db.Messages[current.id]; ok && current.inserted {
					msg.Signals = append(msg.Signals, sig)
				}
			}
		}
	}
	if current != nil {
		flushSYMMessage(db, current)
	}

	postPassResolveValueTables(db)
	return db, scanner.Err()
}

func maybeInsertSYMMessage(db *Database, b *symMessageBuilder) {
	if b.inserted || !(b.hasID && b.hasDLC) || b.name == "" {
		return
	}
	db.Messages[b.id] = &Message{ID: b.id, Name: b.name, DLC: b.dlc}
	b.inserted = true
}

func flushSYMMessage(db *Database, b *symMessageBuilder) {
	maybeInsertSYMMessage(db, b)
}

// parseSYMSigTemplate parses:
//
//	Sig=<name> <type> <bits> [/u:<unit>] [/f:<factor>] [/o:<offset>] [/e:<enum>] [/min:] [/max:]
//
// SYM signals default to little-endian, per spec.md §4.F.
func parseSYMSigTemplate(line string) (Signal, string) {
	m := reSigDecl.FindStringSubmatch(line)
	name := m[1]
	typeName := strings.ToLower(m[2])
	bits, _ := strconv.Atoi(m[3])
	attrs := m[4]

	sig := Signal{
		Name:      name,
		Length:    bits,
		ByteOrder: LittleEndian,
		Factor:    1,
	}
	applySYMType(&sig, typeName, bits)
	applySYMAttrs(&sig, attrs)
	return sig, name
}

func parseSYMVarInline(line string) Signal {
	m := reVarDecl.FindStringSubmatch(line)
	name := m[1]
	typeName := strings.ToLower(m[2])
	start, _ := strconv.Atoi(m[3])
	length, _ := strconv.Atoi(m[4])
	attrs := m[5]

	sig := Signal{
		Name:      name,
		StartBit:  start,
		Length:    length,
		ByteOrder: LittleEndian,
		Factor:    1,
	}
	applySYMType(&sig, typeName, length)
	applySYMAttrs(&sig, attrs)
	return sig
}

func applySYMType(sig *Signal, typeName string, bits int) {
	switch typeName {
	case "signed":
		sig.ValueType = Signed
	case "float":
		sig.ValueType = Float32
		sig.Length = 32
	case "double":
		sig.ValueType = Float64
		sig.Length = 64
	default: // "unsigned", "bit"
		sig.ValueType = Unsigned
	}
}

var (
	reAttrUnit   = regexp.MustCompile(`/u:(\S+)`)
	reAttrFactor = regexp.MustCompile(`/f:(\S+)`)
	reAttrOffset = regexp.MustCompile(`/o:(\S+)`)
	reAttrEnum   = regexp.MustCompile(`/e:(\S+)`)
	reAttrMin    = regexp.MustCompile(`/min:(\S+)`)
	reAttrMax    = regexp.MustCompile(`/max:(\S+)`)
)

func applySYMAttrs(sig *Signal, attrs string) {
	if m := reAttrUnit.FindStringSubmatch(attrs); m != nil {
		sig.Unit = m[1]
	}
	if m := reAttrFactor.FindStringSubmatch(attrs); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			sig.Factor = f
		}
	}
	if m := reAttrOffset.FindStringSubmatch(attrs); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			sig.Offset = f
		}
	}
	if m := reAttrEnum.FindStringSubmatch(attrs); m != nil {
		sig.ValueTable = m[1]
	}
	if m := reAttrMin.FindStringSubmatch(attrs); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			sig.Min = &f
		}
	}
	if m := reAttrMax.FindStringSubmatch(attrs); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			sig.Max = &f
		}
	}
}
