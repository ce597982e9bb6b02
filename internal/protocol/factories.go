package protocol

import (
	"strconv"
	"strings"
)

// NewCommand builds a Command packet whose body wraps commandText (and
// optionally binaryData) in the tags the host expects.
func NewCommand(guid, commandText, binaryData string) Packet {
	var b strings.Builder
	b.WriteString("<command><commandString>")
	b.WriteString(EscapeXML(commandText))
	b.WriteString("</commandString>")
	if binaryData != "" {
		b.WriteString("<binaryData>")
		b.WriteString(binaryData)
		b.WriteString("</binaryData>")
	}
	b.WriteString("</command>")
	return newPacket(Command, guid, b.String(), 1, 1)
}

// NewAck builds an empty-body acknowledgement of guid.
func NewAck(guid string) Packet {
	return newPacket(Ack, guid, "", 1, 1)
}

// NewReceived builds a Received packet for fragment number of count,
// used while a multi-packet command is still being reassembled.
func NewReceived(guid string, number, count uint32, timeout bool) Packet {
	rt := "Success"
	if timeout {
		rt = "TimeOut"
	}
	body := "<responseType>" + rt + "</responseType>"
	return newPacket(Received, guid, body, number, count)
}

// NewAuthResponse builds the empty-body completion marker sent once a
// command has been fully handled.
func NewAuthResponse(guid string) Packet {
	return newPacket(AuthResponse, guid, "", 1, 1)
}

// NewResponse builds the result packet for a finished command.
func NewResponse(guid string, rt ResponseType, commandName, output string, returnCode int, message string) Packet {
	var b strings.Builder
	b.WriteString("<response><responseType>")
	b.WriteString(rt.String())
	b.WriteString("</responseType><resultCode>")
	b.WriteString(strconv.Itoa(returnCode))
	b.WriteString("</resultCode><resultMessage>")
	b.WriteString(EscapeXML(message))
	b.WriteString("</resultMessage><commandName>")
	b.WriteString(EscapeXML(commandName))
	b.WriteString("</commandName><outputString>")
	b.WriteString(EscapeXML(output))
	b.WriteString("</outputString></response>")
	return newPacket(Response, guid, b.String(), 1, 1)
}
