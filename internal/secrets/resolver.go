package secrets

import (
	"fmt"
	"os"
	"strings"
)

// ResolveCredential turns a provider credential_ref into a usable credential.
// Resolution order:
//  1. "${VAR}" → environment variable (dotenv entries are loaded into the
//     environment at startup, so this covers them too)
//  2. ENC[age:...] blob → decrypted with the local age identity
//  3. anything else → literal value
//
// An empty ref resolves to the driver's conventional env var when one exists.
func ResolveCredential(ref, driver string) (string, error) {
	trimmed := strings.TrimSpace(ref)

	if trimmed == "" {
		return driverDefaultCredential(driver)
	}

	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		name := trimmed[2 : len(trimmed)-1]
		v := os.Getenv(name)
		if v == "" {
			return "", fmt.Errorf("credential env var %s not set", name)
		}
		// Dotenv entries written by `secrets set` are encrypted blobs.
		if IsEncrypted(v) {
			return decryptWithLocalIdentity(v)
		}
		return v, nil
	}

	if IsEncrypted(trimmed) {
		return decryptWithLocalIdentity(trimmed)
	}

	return trimmed, nil
}

func decryptWithLocalIdentity(blob string) (string, error) {
	identity, err := LoadIdentity(KeyPath())
	if err != nil {
		return "", fmt.Errorf("load identity for credential: %w", err)
	}
	return Decrypt(blob, identity)
}

// driverDefaultCredential falls back to the conventional env var per driver.
// Ollama needs no credential, so an empty value is fine there.
func driverDefaultCredential(driver string) (string, error) {
	var name string
	switch strings.ToLower(driver) {
	case "anthropic":
		name = "ANTHROPIC_API_KEY"
	case "openai":
		name = "OPENAI_API_KEY"
	case "gemini":
		name = "GEMINI_API_KEY"
	case "ollama":
		return "", nil
	default:
		return "", fmt.Errorf("unknown driver %q: cannot resolve credential", driver)
	}

	key := os.Getenv(name)
	if key == "" {
		return "", fmt.Errorf("%s not set", name)
	}
	if IsEncrypted(key) {
		return decryptWithLocalIdentity(key)
	}
	return key, nil
}
