package analysis

import "strconv"

type service struct {
	name        string
	description string
}

var commonPorts = map[int]service{
	20:    {"FTP-DATA", "FTP data channel"},
	21:    {"FTP", "FTP (File Transfer Protocol)"},
	22:    {"SSH", "SSH (Secure Shell)"},
	23:    {"Telnet", "Telnet"},
	25:    {"SMTP", "SMTP (Email)"},
	53:    {"DNS", "DNS (Domain Name System)"},
	67:    {"DHCP", "DHCP Server"},
	68:    {"DHCP", "DHCP Client"},
	80:    {"HTTP", "HTTP (Web)"},
	110:   {"POP3", "POP3 (Email)"},
	139:   {"NetBIOS", "NetBIOS Session Service"},
	143:   {"IMAP", "IMAP (Email)"},
	161:   {"SNMP", "SNMP (Network Management)"},
	443:   {"HTTPS", "HTTPS (Secure Web)"},
	445:   {"SMB", "SMB (Windows File Sharing)"},
	548:   {"AFP", "AFP (Apple File Sharing)"},
	631:   {"IPP", "IPP (Internet Printing)"},
	993:   {"IMAPS", "IMAPS (Secure Email)"},
	995:   {"POP3S", "POP3S (Secure Email)"},
	1900:  {"SSDP", "SSDP (UPnP Discovery)"},
	3306:  {"MySQL", "MySQL Database"},
	3389:  {"RDP", "RDP (Remote Desktop)"},
	5000:  {"UPnP", "UPnP/AirPlay"},
	5353:  {"mDNS", "mDNS (Multicast DNS/Bonjour)"},
	5432:  {"PostgreSQL", "PostgreSQL Database"},
	6379:  {"Redis", "Redis"},
	7000:  {"AirPlay", "AirPlay"},
	8008:  {"HTTP-Alt", "HTTP Alt/Google Cast"},
	8009:  {"Cast", "Google Cast"},
	8080:  {"HTTP-Alt", "HTTP Proxy/Alt"},
	8443:  {"HTTPS-Alt", "HTTPS Alt"},
	27017: {"MongoDB", "MongoDB Database"},
	62078: {"iCloud", "Apple iCloud/AirPlay"},
}

// GetServiceName returns the common name for a port, or the port number as a string.
func GetServiceName(port int) string {
	if s, ok := commonPorts[port]; ok {
		return s.name
	}
	return strconv.Itoa(port)
}

// ServiceDescription returns a longer description of a well-known port.
func ServiceDescription(port int) (string, bool) {
	s, ok := commonPorts[port]
	return s.description, ok
}
