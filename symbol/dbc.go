package symbol

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Line-grammar regexes, one per DBC record kind.
var (
	reVersion = regexp.MustCompile(`^VERSION\s+"(.*)"\s*$`)
	reNodes   = regexp.MustCompile(`^BU_:\s*(.*)$`)
	reMessage = regexp.MustCompile(`^BO_\s+(\d+)\s+(\S+?):\s+(\d+)\s+(\S+)\s*$`)
	reSignal  = regexp.MustCompile(`^SG_\s+(\S+)\s*:\s*(\d+)\|(\d+)@(\d)([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]*)\|([^\]]*)\]\s*"([^"]*)"\s*(.*)$`)
	reValTab  = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\S+)\s+(.*);\s*$`)
	reValPair = regexp.MustCompile(`(-?\d+)\s+"([^"]*)"`)
	reCmBO    = regexp.MustCompile(`^CM_\s+BO_\s+(\d+)\s+"(.*)"\s*;\s*$`)
	reCmSG    = regexp.MustCompile(`^CM_\s+SG_\s+(\d+)\s+(\S+)\s+"(.*)"\s*;\s*$`)
)

// ParseDBC parses a Vector DBC text stream into a Database. Blank
// lines and `//` comments are skipped; unrecognized lines are ignored,
// per spec.md §4.F and the bulk-parsing error policy of §7 (malformed
// records are dropped, not fatal).
func ParseDBC(r io.Reader) (*Database, error) {
	db := NewDatabase()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentMessage *Message

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		switch {
		case reVersion.MatchString(line):
			m := reVersion.FindStringSubmatch(line)
			db.Version = m[1]

		case reNodes.MatchString(line):
			m := reNodes.FindStringSubmatch(line)
			for _, n := range strings.Fields(m[1]) {
				db.Nodes = append(db.Nodes, n)
			}

		case reMessage.MatchString(line):
			m := reMessage.FindStringSubmatch(line)
			id, _ := strconv.ParseUint(m[1], 10, 32)
			dlc, _ := strconv.ParseUint(m[3], 10, 8)
			msg := &Message{
				ID:     uint32(id),
				Name:   m[2],
				DLC:    uint8(dlc),
				Sender: m[4],
			}
			db.Messages[msg.ID] = msg
			currentMessage = msg

		case reSignal.MatchString(line):
			if currentMessage == nil {
				continue
			}
			sig, ok := parseDBCSignal(line)
			if !ok {
				continue
			}
			currentMessage.Signals = append(currentMessage.Signals, sig)

		case reValTab.MatchString(line):
			m := reValTab.FindStringSubmatch(line)
			id, _ := strconv.ParseUint(m[1], 10, 32)
			signalName := m[2]
			vt := parseValueTablePairs(m[3])
			attachValueTable(db, uint32(id), signalName, vt)

		case reCmBO.MatchString(line):
			m := reCmBO.FindStringSubmatch(line)
			id, _ := strconv.ParseUint(m[1], 10, 32)
			if msg, ok := db.Messages[uint32(id)]; ok {
				msg.Comment = m[2]
			}

		case reCmSG.MatchString(line):
			m := reCmSG.FindStringSubmatch(line)
			id, _ := strconv.ParseUint(m[1], 10, 32)
			if msg, ok := db.Messages[uint32(id)]; ok {
				for i := range msg.Signals {
					if msg.Signals[i].Name == m[2] {
						msg.Signals[i].Comment = m[3]
					}
				}
			}
		}
	}

	postPassResolveValueTables(db)
	return db, scanner.Err()
}

func parseDBCSignal(line string) (Signal, bool) {
	m := reSignal.FindStringSubmatch(line)
	if m == nil {
		return Signal{}, false
	}
	start, _ := strconv.Atoi(m[2])
	length, _ := strconv.Atoi(m[3])
	order := LittleEndian
	if m[4] == "0" {
		order = BigEndian
	}
	valueType := Unsigned
	if m[5] == "-" {
		valueType = Signed
	}
	factor, _ := strconv.ParseFloat(strings.TrimSpace(m[6]), 64)
	offset, _ := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)

	var min, max *float64
	if v, err := strconv.ParseFloat(strings.TrimSpace(m[8]), 64); err == nil {
		min = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(m[9]), 64); err == nil {
		max = &v
	}

	unit := m[10]
	receivers := strings.Fields(m[11])

	return Signal{
		Name:      m[1],
		StartBit:  start,
		Length:    length,
		ByteOrder: order,
		ValueType: valueType,
		Factor:    factor,
		Offset:    offset,
		Min:       min,
		Max:       max,
		Unit:      unit,
		Receivers: receivers,
	}, true
}

func parseValueTablePairs(raw string) *ValueTable {
	vt := &ValueTable{Labels: make(map[int64]string)}
	for _, m := range reValPair.FindAllStringSubmatch(raw, -1) {
		val, _ := strconv.ParseInt(m[1], 10, 64)
		vt.Labels[val] = m[2]
	}
	return vt
}

// attachValueTable stores an inline VAL_ table in the database's
// value-table map under "<msgID>:<signal>" and points the named signal
// at it. The post-pass only clears references that do not resolve.
func attachValueTable(db *Database, msgID uint32, signalName string, vt *ValueTable) {
	msg, ok := db.Messages[msgID]
	if !ok {
		return
	}
	tableName := signalTableName(msgID, signalName)
	vt.Name = tableName
	db.ValueTables[tableName] = vt
	for i := range msg.Signals {
		if msg.Signals[i].Name == signalName {
			msg.Signals[i].ValueTable = tableName
		}
	}
}

func signalTableName(msgID uint32, signalName string) string {
	return strconv.FormatUint(uint64(msgID), 10) + ":" + signalName
}

// postPassResolveValueTables is a no-op for DBC today (value tables are
// attached at parse time by exact name) but is kept as the documented
// hook so both formats share one resolution point, matching spec.md
// §4.F's "Post-pass (both formats)".
func postPassResolveValueTables(db *Database) {
	for _, msg := range db.Messages {
		for i := range msg.Signals {
			name := msg.Signals[i].ValueTable
			if name == "" {
				continue
			}
			if _, ok := db.ValueTables[name]; !ok {
				msg.Signals[i].ValueTable = ""
			}
		}
	}
}
