package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"ftpd/protocol"
	"ftpd/sandbox"
	"ftpd/transfer"
)

// ClientSession is the per-control-connection state machine. Exactly one
// session exists per connection and it is owned by that connection's
// goroutine; nothing here needs locking.
type ClientSession struct {
	server *FTPServer
	conn   net.Conn
	codec  protocol.LineCodec
	data   *transfer.Manager
	logger *log.Logger

	// Navigation and transfer state.
	cwd          string // virtual, always absolute, never escapes root
	transferType protocol.TransferType
	dataPort     uint16 // requested via PORT, used by the next PASV bind

	// Authentication state.
	username         string // set once Authenticated
	admin            bool
	awaitingPassword bool
	pendingUser      string
	pendingAdmin     bool

	closed bool
}

func newClientSession(server *FTPServer, conn net.Conn) *ClientSession {
	sessionID := uuid.NewString()[:8]
	logger := log.New(os.Stdout, fmt.Sprintf("[%s %s] ", sessionID, conn.RemoteAddr()), log.LstdFlags)
	return &ClientSession{
		server:       server,
		conn:         conn,
		data:         transfer.NewManager(server.pasvHost(), server.cfg.AcceptTimeout, server.cfg.BandwidthLimit, logger),
		logger:       logger,
		cwd:          "/",
		transferType: protocol.TypeASCII,
	}
}

// run drives the session until the control connection closes. Commands are
// handled strictly sequentially: one command runs to completion, including
// any nested data-channel accept and file I/O, before the next line is
// decoded.
func (s *ClientSession) run(ctx context.Context) {
	defer s.conn.Close()
	defer s.data.Close()

	s.send(protocol.ServiceReadyForNewUser, "Welcome to this FTP server!")

	buf := make([]byte, 1024)
	for !s.closed {
		if s.server.cfg.IdleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.IdleTimeout))
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.codec.Feed(buf[:n])
			s.drainCommands(ctx)
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !s.closed {
				s.logger.Printf("Control connection closed: %v", err)
			}
			return
		}
	}
}

func (s *ClientSession) drainCommands(ctx context.Context) {
	for !s.closed {
		cmd, ok, err := s.codec.Decode()
		if err != nil {
			var pe *protocol.ParseError
			if errors.As(err, &pe) {
				s.send(pe.Code, pe.Msg)
				continue
			}
			if errors.Is(err, protocol.ErrLineTooLong) {
				s.send(protocol.UnknownCommand, "Command line too long")
				continue
			}
			s.send(protocol.UnknownCommand, "Malformed command")
			continue
		}
		if !ok {
			return
		}
		s.handleCommand(ctx, cmd)
	}
}

// handleCommand dispatches one decoded command. The variant set is closed;
// adding a verb means extending both the parser table and this switch.
func (s *ClientSession) handleCommand(ctx context.Context, cmd protocol.Command) {
	s.logCommand(cmd)

	if !s.authenticated() && !preAuthAllowed(cmd.Kind) {
		s.send(protocol.NotLoggedIn, "Please log in first")
		return
	}

	switch cmd.Kind {
	case protocol.KindUser:
		s.handleUser(cmd.Arg)
	case protocol.KindPass:
		s.handlePass(cmd.Arg)
	case protocol.KindPwd:
		s.send(protocol.PATHNAMECreated, fmt.Sprintf("%q is the current directory", s.cwd))
	case protocol.KindCwd:
		s.handleCwd(cmd.Arg)
	case protocol.KindCdUp:
		s.handleCdUp()
	case protocol.KindType:
		s.transferType = cmd.Type
		s.send(protocol.Ok, "Transfer type changed successfully")
	case protocol.KindPasv:
		s.handlePasv()
	case protocol.KindPort:
		s.dataPort = cmd.Port
		s.send(protocol.Ok, "PORT command successful")
	case protocol.KindMkd:
		s.handleMkd(cmd.Arg)
	case protocol.KindRmd:
		s.handleRmd(cmd.Arg)
	case protocol.KindList:
		s.handleList(ctx, cmd.Arg)
	case protocol.KindRetr:
		s.handleRetr(ctx, cmd.Arg)
	case protocol.KindStor:
		s.handleStor(ctx, cmd.Arg)
	case protocol.KindDele:
		s.handleDele(cmd.Arg)
	case protocol.KindSize:
		s.handleSize(cmd.Arg)
	case protocol.KindFeat:
		s.send(protocol.SystemStatus, "End")
	case protocol.KindSyst:
		s.send(protocol.SystemType, "UNIX Type: L8")
	case protocol.KindNoOp:
		s.send(protocol.Ok, "NOOP command successful")
	case protocol.KindQuit:
		s.handleQuit()
	default:
		s.send(protocol.CommandNotImplemented, fmt.Sprintf("%q: Not implemented", cmd.Arg))
	}
}

// preAuthAllowed lists the commands a client may issue before logging in.
func preAuthAllowed(kind protocol.Kind) bool {
	switch kind {
	case protocol.KindUser, protocol.KindPass, protocol.KindNoOp, protocol.KindSyst,
		protocol.KindType, protocol.KindFeat, protocol.KindQuit, protocol.KindUnknown:
		return true
	}
	return false
}

func (s *ClientSession) authenticated() bool {
	return s.username != ""
}

// Authentication -----------------------------------------------------------

func (s *ClientSession) handleUser(name string) {
	if name == "" {
		s.send(protocol.InvalidParameterOrArgument, "Invalid username")
		return
	}
	s.awaitingPassword = false
	s.pendingUser = ""
	s.pendingAdmin = false

	acct, ok := s.server.creds.Lookup(name)
	if !ok {
		s.send(protocol.NotLoggedIn, "User not found")
		return
	}
	if acct.NeedsPassword() {
		s.pendingUser = acct.Name
		s.pendingAdmin = acct.Admin
		s.awaitingPassword = true
		s.send(protocol.UserNameOkayNeedPassword, fmt.Sprintf("Password required for %s", acct.Name))
		return
	}
	s.completeLogin(acct.Name, acct.Admin)
}

func (s *ClientSession) handlePass(secret string) {
	if !s.awaitingPassword {
		s.send(protocol.BadSequenceOfCommands, "Login with USER first")
		return
	}
	acct, ok := s.server.creds.Lookup(s.pendingUser)

	// A wrong password clears the pending state so the client can retry
	// with USER immediately.
	name, admin := s.pendingUser, s.pendingAdmin
	s.awaitingPassword = false
	s.pendingUser = ""
	s.pendingAdmin = false

	if !ok || acct.Admin != admin || !acct.Verify(secret) {
		s.send(protocol.NotLoggedIn, "Login incorrect")
		return
	}
	s.completeLogin(name, admin)
}

func (s *ClientSession) completeLogin(name string, admin bool) {
	s.username = name
	s.admin = admin
	s.send(protocol.UserLoggedIn, fmt.Sprintf("Welcome %s!", name))
	s.logger.Printf("User %s logged in (admin=%v)", name, admin)
}

// Navigation ---------------------------------------------------------------

func (s *ClientSession) handleCwd(dir string) {
	real, err := s.server.resolver.Resolve(s.cwd, dir)
	if err == nil {
		if info, statErr := os.Stat(real); statErr != nil || !info.IsDir() {
			err = fmt.Errorf("not a directory")
		}
	}
	if err != nil {
		s.send(protocol.FileNotFound, "No such file or directory")
		return
	}
	virt, err := s.server.resolver.Virtual(real)
	if err != nil {
		s.send(protocol.FileNotFound, "No such file or directory")
		return
	}
	s.cwd = virt
	s.send(protocol.RequestedFileActionOkay, fmt.Sprintf("Directory changed to %q", virt))
}

func (s *ClientSession) handleCdUp() {
	if s.cwd != "/" {
		s.cwd = path.Dir(s.cwd)
	}
	s.send(protocol.Ok, "Done")
}

// Filesystem mutation ------------------------------------------------------

func (s *ClientSession) handleMkd(dir string) {
	real, err := s.server.resolver.ResolveForCreate(s.cwd, dir)
	if err == nil {
		err = os.Mkdir(real, 0o755)
	}
	if err != nil {
		s.send(protocol.FileNotFound, "Couldn't create folder")
		return
	}
	s.send(protocol.PATHNAMECreated, "Folder successfully created!")
}

func (s *ClientSession) handleRmd(dir string) {
	real, err := s.server.resolver.Resolve(s.cwd, dir)
	if err == nil {
		var info os.FileInfo
		if info, err = os.Stat(real); err == nil && !info.IsDir() {
			err = fmt.Errorf("not a directory")
		}
	}
	if err != nil || real == s.server.resolver.Root() {
		s.send(protocol.FileNotFound, "Couldn't remove folder")
		return
	}
	if err := os.RemoveAll(real); err != nil {
		s.send(protocol.FileNotFound, "Couldn't remove folder")
		return
	}
	s.send(protocol.RequestedFileActionOkay, "Folder successfully removed")
}

func (s *ClientSession) handleDele(name string) {
	real, err := s.server.resolver.Resolve(s.cwd, name)
	if err == nil {
		if s.server.resolver.Protected(real, s.admin) {
			err = sandbox.ErrProtected
		}
	}
	if err == nil {
		var info os.FileInfo
		if info, err = os.Stat(real); err == nil && info.IsDir() {
			err = fmt.Errorf("is a directory")
		}
	}
	if err != nil {
		s.send(protocol.FileNotFound, "Couldn't delete file")
		return
	}
	if err := os.Remove(real); err != nil {
		s.send(protocol.FileNotFound, "Couldn't delete file")
		return
	}
	s.send(protocol.RequestedFileActionOkay, "File deleted")
}

func (s *ClientSession) handleSize(name string) {
	real, err := s.server.resolver.Resolve(s.cwd, name)
	if err == nil && s.server.resolver.Protected(real, s.admin) {
		err = sandbox.ErrProtected
	}
	var info os.FileInfo
	if err == nil {
		if info, err = os.Stat(real); err == nil && info.IsDir() {
			err = fmt.Errorf("is a directory")
		}
	}
	if err != nil {
		s.send(protocol.FileNotFound, "Could not get file size")
		return
	}
	s.send(protocol.FileStatus, fmt.Sprintf("%d", info.Size()))
}

// Data channel -------------------------------------------------------------

func (s *ClientSession) handlePasv() {
	if s.data.Open() {
		s.send(protocol.DataConnectionAlreadyOpen, "Already listening...")
		return
	}
	encoded, err := s.data.Listen(s.dataPort)
	if err != nil {
		s.logger.Printf("PASV bind failed: %v", err)
		s.send(protocol.CantOpenDataConnection, "Can't open data connection")
		return
	}
	s.send(protocol.EnteringPassiveMode, fmt.Sprintf("Entering Passive Mode (%s)", encoded))

	// The accept is a suspension point: the session does nothing else
	// until the peer connects or the deadline expires.
	if err := s.data.Accept(); err != nil {
		s.logger.Printf("PASV accept failed: %v", err)
		s.send(protocol.CantOpenDataConnection, "No connection arrived")
	}
}

// Transfers ----------------------------------------------------------------

func (s *ClientSession) handleList(ctx context.Context, target string) {
	if !s.data.Open() {
		s.send(protocol.ConnectionClosed, "No opened data connection")
		return
	}
	real, err := s.server.resolver.Resolve(s.cwd, target)
	if err == nil && s.server.resolver.Protected(real, s.admin) {
		err = sandbox.ErrProtected
	}
	if err != nil {
		s.send(protocol.InvalidParameterOrArgument, "No such file or directory")
		return
	}
	listing, err := transfer.RenderListing(real, func(name string) bool {
		return s.server.resolver.ProtectedName(name, s.admin)
	})
	if err != nil {
		s.send(protocol.InvalidParameterOrArgument, "No such file or directory")
		return
	}

	s.send(protocol.DataConnectionAlreadyOpen, "Starting to list directory...")
	if err := s.data.Send(ctx, listing); err != nil {
		s.logger.Printf("LIST send failed: %v", err)
	}
	s.closeData()
}

func (s *ClientSession) handleRetr(ctx context.Context, target string) {
	if !s.data.Open() {
		s.send(protocol.ConnectionClosed, "No opened data connection")
		return
	}
	real, err := s.server.resolver.Resolve(s.cwd, target)
	if err == nil && s.server.resolver.Protected(real, s.admin) {
		err = sandbox.ErrProtected
	}
	var info os.FileInfo
	if err == nil {
		if info, err = os.Stat(real); err == nil && !info.Mode().IsRegular() {
			err = fmt.Errorf("not a regular file")
		}
	}
	if err != nil {
		s.send(protocol.LocalErrorInProcessing, fmt.Sprintf("%q doesn't exist", target))
		s.closeData()
		return
	}

	content, err := os.ReadFile(real)
	if err != nil {
		s.send(protocol.LocalErrorInProcessing, fmt.Sprintf("%q doesn't exist", target))
		s.closeData()
		return
	}
	s.send(protocol.DataConnectionAlreadyOpen, "Starting to send file...")
	if err := s.data.Send(ctx, content); err != nil {
		s.logger.Printf("RETR send failed: %v", err)
	}
	s.closeData()
}

func (s *ClientSession) handleStor(ctx context.Context, target string) {
	// Traversal and protected targets are rejected up front, regardless
	// of data-channel state.
	real, err := s.server.resolver.ResolveForCreate(s.cwd, target)
	if err == nil && s.server.resolver.Protected(real, s.admin) {
		err = sandbox.ErrProtected
	}
	if err != nil {
		s.send(protocol.FileNotFound, "Permission denied")
		return
	}
	if !s.data.Open() {
		s.send(protocol.ConnectionClosed, "No opened data connection")
		return
	}

	s.send(protocol.DataConnectionAlreadyOpen, "Starting to receive file...")
	content, err := s.data.Drain(ctx)
	if err != nil {
		// A broken upload writes nothing: better a clean failure than
		// a silently truncated file.
		s.logger.Printf("STOR aborted: %v", err)
		s.data.Close()
		s.send(protocol.ConnectionClosed, "Connection closed; transfer aborted")
		return
	}
	if err := os.WriteFile(real, content, 0o644); err != nil {
		s.logger.Printf("STOR write failed: %v", err)
		s.data.Close()
		s.send(protocol.LocalErrorInProcessing, "Couldn't store file")
		return
	}
	s.closeData()
}

// closeData tears down the data channel and sends the closing-transfer
// reply if a channel existed.
func (s *ClientSession) closeData() {
	if err := s.data.Close(); err != nil {
		s.logger.Printf("Data channel close: %v", err)
	}
	s.send(protocol.ClosingDataConnection, "Transfer done")
}

// Teardown -----------------------------------------------------------------

func (s *ClientSession) handleQuit() {
	s.send(protocol.ServiceClosingControlConnection, "Closing connection...")
	s.closed = true
	s.conn.Close()
}

func (s *ClientSession) send(code protocol.ResultCode, message string) {
	out := s.codec.Encode(protocol.NewAnswer(code, message))
	if _, err := s.conn.Write(out); err != nil {
		if !s.closed {
			s.logger.Printf("Failed to send reply %d: %v", code, err)
			s.closed = true
		}
		return
	}
	s.logger.Printf("-> %d %s", code, message)
}

// logCommand logs every received command, with the PASS argument redacted.
func (s *ClientSession) logCommand(cmd protocol.Command) {
	if cmd.Kind == protocol.KindPass {
		s.logger.Printf("<- PASS [REDACTED]")
		return
	}
	if cmd.Arg != "" {
		s.logger.Printf("<- %s %s", cmd.Kind.Verb(), cmd.Arg)
		return
	}
	s.logger.Printf("<- %s", cmd.Kind.Verb())
}
