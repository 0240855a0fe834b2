package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TransferType is the negotiated representation type (TYPE command).
type TransferType byte

const (
	TypeASCII TransferType = 'A'
	TypeImage TransferType = 'I'
)

// Kind identifies a Command variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindUser
	KindPass
	KindPwd
	KindCwd
	KindCdUp
	KindType
	KindPasv
	KindPort
	KindMkd
	KindRmd
	KindList
	KindRetr
	KindStor
	KindDele
	KindSize
	KindFeat
	KindSyst
	KindNoOp
	KindQuit
)

// Verb returns the wire verb for a known kind, or "?" for Unknown.
func (k Kind) Verb() string {
	for verb, kind := range verbTable {
		if kind == k {
			return verb
		}
	}
	return "?"
}

// Command is one parsed control-channel command. It is a tagged variant:
// Kind selects which of the argument fields is meaningful. Commands are
// immutable once constructed, one per input line.
type Command struct {
	Kind Kind

	// Arg holds the string or path argument for USER, PASS, CWD, MKD,
	// RMD, RETR, STOR, DELE and SIZE. For LIST it is the optional path
	// ("" means the current directory). For Unknown it is the original
	// line text.
	Arg string

	// Port is the decoded data port for PORT.
	Port uint16

	// Type is the decoded mode for TYPE.
	Type TransferType
}

// ParseError is a structured parse failure. Code is the reply the session
// should send for it; the parser itself never talks to the network.
type ParseError struct {
	Code ResultCode
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Msg)
}

// verbTable maps upper-cased verbs to their variant. Verbs that need
// argument decoding beyond a plain string are handled in ParseCommand.
var verbTable = map[string]Kind{
	"USER": KindUser,
	"PASS": KindPass,
	"PWD":  KindPwd,
	"CWD":  KindCwd,
	"CDUP": KindCdUp,
	"TYPE": KindType,
	"PASV": KindPasv,
	"PORT": KindPort,
	"MKD":  KindMkd,
	"RMD":  KindRmd,
	"LIST": KindList,
	"RETR": KindRetr,
	"STOR": KindStor,
	"DELE": KindDele,
	"SIZE": KindSize,
	"FEAT": KindFeat,
	"SYST": KindSyst,
	"NOOP": KindNoOp,
	"QUIT": KindQuit,
}

// ParseCommand turns the bytes of one line (CRLF already stripped) into a
// Command. It is total: any byte sequence, including empty and non-UTF-8
// input, yields either a Command or a *ParseError, never a panic. A verb
// that is not in the table yields an Unknown command so the session can
// answer "not implemented" instead of treating the line as malformed.
func ParseCommand(line []byte) (Command, error) {
	verb, rest := splitVerb(line)

	kind, ok := verbTable[strings.ToUpper(verb)]
	if !ok {
		return Command{Kind: KindUnknown, Arg: string(line)}, nil
	}

	switch kind {
	case KindUser, KindPass, KindCwd, KindMkd, KindRmd, KindRetr, KindStor, KindDele, KindSize:
		arg, err := decodeText(rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: kind, Arg: arg}, nil

	case KindList:
		// Optional path.
		arg, err := decodeText(rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindList, Arg: arg}, nil

	case KindPort:
		port, err := decodePort(rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindPort, Port: port}, nil

	case KindType:
		typ, err := decodeType(rest)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindType, Type: typ}, nil

	default:
		// Argument-less verbs; trailing text is ignored.
		return Command{Kind: kind}, nil
	}
}

// splitVerb splits a line on the first whitespace run into the verb and the
// remainder. The remainder keeps any interior whitespace intact so that
// paths with spaces survive.
func splitVerb(line []byte) (string, []byte) {
	i := 0
	for i < len(line) && line[i] != ' ' && line[i] != '\t' {
		i++
	}
	verb := string(line[:i])
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return verb, line[i:]
}

func decodeText(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &ParseError{Code: InvalidParameterOrArgument, Msg: "Argument is not valid UTF-8"}
	}
	return string(raw), nil
}

// decodePort decodes the h1,h2,h3,h4,p1,p2 argument of PORT. The four host
// octets are validated but discarded: only passive mode uses the recorded
// port, and the data channel always binds server-side.
func decodePort(raw []byte) (uint16, error) {
	text, err := decodeText(raw)
	if err != nil {
		return 0, err
	}
	parts := strings.Split(text, ",")
	if len(parts) != 6 {
		return 0, &ParseError{Code: InvalidParameterOrArgument, Msg: "PORT needs six comma-separated octets"}
	}
	octets := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return 0, &ParseError{Code: InvalidParameterOrArgument, Msg: "PORT octet out of range"}
		}
		octets[i] = n
	}
	return uint16(octets[4])<<8 | uint16(octets[5]), nil
}

func decodeType(raw []byte) (TransferType, error) {
	if len(raw) == 1 {
		switch raw[0] {
		case 'A', 'a':
			return TypeASCII, nil
		case 'I', 'i':
			return TypeImage, nil
		}
	}
	return 0, &ParseError{Code: CommandNotImplementedForThatParameter, Msg: "Unknown transfer type"}
}
