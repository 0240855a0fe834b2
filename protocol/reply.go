package protocol

import "fmt"

// ResultCode is a three-digit FTP reply code as defined by RFC 959.
type ResultCode int

const (
	RestartMarkerReply                           ResultCode = 110
	DataConnectionAlreadyOpen                    ResultCode = 125
	FileStatusOkay                               ResultCode = 150
	Ok                                           ResultCode = 200
	CommandNotImplementedSuperfluousAtThisSite   ResultCode = 202
	SystemStatus                                 ResultCode = 211
	DirectoryStatus                              ResultCode = 212
	FileStatus                                   ResultCode = 213
	HelpMessage                                  ResultCode = 214
	SystemType                                   ResultCode = 215
	ServiceReadyForNewUser                       ResultCode = 220
	ServiceClosingControlConnection              ResultCode = 221
	DataConnectionOpen                           ResultCode = 225
	ClosingDataConnection                        ResultCode = 226
	EnteringPassiveMode                          ResultCode = 227
	UserLoggedIn                                 ResultCode = 230
	RequestedFileActionOkay                      ResultCode = 250
	PATHNAMECreated                              ResultCode = 257
	UserNameOkayNeedPassword                     ResultCode = 331
	NeedAccountForLogin                          ResultCode = 332
	RequestedFileActionPendingFurtherInformation ResultCode = 350
	ServiceNotAvailable                          ResultCode = 421
	CantOpenDataConnection                       ResultCode = 425
	ConnectionClosed                             ResultCode = 426
	FileBusy                                     ResultCode = 450
	LocalErrorInProcessing                       ResultCode = 451
	InsufficientStorageSpace                     ResultCode = 452
	UnknownCommand                               ResultCode = 500
	InvalidParameterOrArgument                   ResultCode = 501
	CommandNotImplemented                        ResultCode = 502
	BadSequenceOfCommands                        ResultCode = 503
	CommandNotImplementedForThatParameter        ResultCode = 504
	NotLoggedIn                                  ResultCode = 530
	NeedAccountForStoringFiles                   ResultCode = 532
	FileNotFound                                 ResultCode = 550
	PageTypeUnknown                              ResultCode = 551
	ExceededStorageAllocation                    ResultCode = 552
	FileNameNotAllowed                           ResultCode = 553
)

// Answer is a single protocol reply: a status code and a human-readable
// message. Immutable value, one per protocol event.
type Answer struct {
	Code    ResultCode
	Message string
}

// NewAnswer creates a reply with the given code and message.
func NewAnswer(code ResultCode, message string) Answer {
	return Answer{Code: code, Message: message}
}

func (a Answer) String() string {
	if a.Message == "" {
		return fmt.Sprintf("%d", a.Code)
	}
	return fmt.Sprintf("%d %s", a.Code, a.Message)
}
