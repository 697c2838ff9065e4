// Selfie capture kiosk: guides a user to a well-framed selfie with live face
// validation, then captures a JPEG snapshot with its biometric summary.

package main

import "selfie-capture-kiosk/cmd"

func main() {
	cmd.Execute()
}
