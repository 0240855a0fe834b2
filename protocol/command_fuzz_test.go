package protocol

import "testing"

func FuzzParseCommand(f *testing.F) {
	f.Add([]byte("USER anonymous"))
	f.Add([]byte("PORT 127,0,0,1,4,210"))
	f.Add([]byte("TYPE A"))
	f.Add([]byte("LIST /tmp"))
	f.Add([]byte(""))
	f.Add([]byte("CWD \xff\xfe"))
	f.Add([]byte("PORT ,,,,,"))

	f.Fuzz(func(t *testing.T, line []byte) {
		// Any input must produce a value or an error, never a panic.
		cmd, err := ParseCommand(line)
		if err == nil && cmd.Kind == KindUnknown && cmd.Arg != string(line) {
			t.Errorf("Unknown command lost its original text: %q vs %q", cmd.Arg, line)
		}
	})
}

func FuzzLineCodec(f *testing.F) {
	f.Add([]byte("PWD\r\nLIST\r\n"))
	f.Add([]byte("half a li"))
	f.Add([]byte("CR in \r the middle\r\n"))

	f.Fuzz(func(t *testing.T, stream []byte) {
		var c LineCodec
		c.Feed(stream)
		for {
			_, ok, err := c.Decode()
			if err != nil || !ok {
				return
			}
		}
	})
}
