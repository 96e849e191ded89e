package main

// detectLocalAddr and detectPublicAddr stand in for the address-discovery
// collaborator named in the node CLI's scope: querying local network
// configuration for a LAN address, and an external service for a WAN
// address. Both are out-of-scope external concerns here; a deployment
// wires in a real discoverer by replacing these two functions.

func detectLocalAddr() (ip string, ok bool) {
	return "", false
}

func detectPublicAddr() (ip string, ok bool) {
	return "", false
}
