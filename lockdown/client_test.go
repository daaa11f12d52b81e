// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/lockdownd-go/lockdownd/internal/truststore"
	"github.com/lockdownd-go/lockdownd/lockdown"
	"github.com/lockdownd-go/lockdownd/lockdown/testfake"
)

const testDeviceUUID = "1111-2222"

func newTestStore(t *testing.T) *truststore.GormStore {
	t.Helper()
	store, err := truststore.Open(truststore.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open trust store: %v", err)
	}
	return store
}

func devicePublicKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate device key: %v", err)
	}
	der := x509.MarshalPKCS1PublicKey(&key.PublicKey)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: der})
}

// getValueHandler answers UniqueDeviceID and DevicePublicKey, the two
// values the handshake constructor needs.
func getValueHandler(uuid string, pubKeyPEM []byte) testfake.Handler {
	return func(req map[string]any) map[string]any {
		key, _ := req["Key"].(string)
		switch key {
		case "UniqueDeviceID":
			return map[string]any{"Result": "Success", "Key": key, "Value": uuid}
		case "DevicePublicKey":
			return map[string]any{"Result": "Success", "Key": key, "Value": pubKeyPEM}
		default:
			return map[string]any{"Result": "Failure", "Error": "UnknownKey"}
		}
	}
}

func successHandler() testfake.Handler {
	return func(map[string]any) map[string]any { return map[string]any{"Result": "Success"} }
}

// TestFreshDeviceHandshake is scenario 1: an empty trust store pairs,
// validates, starts a session and upgrades to TLS.
func TestFreshDeviceHandshake(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", successHandler())
	device.On("ValidatePair", successHandler())
	device.On("StartSession", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "SessionID": "S1", "EnableSessionSSL": true}
	})

	client, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "test")
	if err != nil {
		t.Fatalf("NewWithHandshake: %v", err)
	}

	trusted, err := store.HasDevicePublicKey(ctx, testDeviceUUID)
	if err != nil {
		t.Fatalf("HasDevicePublicKey: %v", err)
	}
	if !trusted {
		t.Fatal("device public key was not persisted after a successful Pair")
	}

	// Verifies the session really is usable post-handshake; the device
	// has no StartService handler registered, so this fails with
	// StartServiceFailed (an "Unimplemented" Failure response) rather
	// than NoRunningSession.
	_, err = client.StartService(ctx, "com.apple.afc")
	var lerr *lockdown.Error
	if !errors.As(err, &lerr) || lerr.Kind != lockdown.KindStartServiceFailed {
		t.Fatalf("StartService after handshake: %v", err)
	}
}

// TestRepeatDeviceHandshake is scenario 2: a device already trusted
// skips Pair and still refreshes the stored public key.
func TestRepeatDeviceHandshake(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	if err := store.SetDevicePublicKey(ctx, testDeviceUUID, []byte("stale-pem")); err != nil {
		t.Fatalf("seed trust store: %v", err)
	}

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", func(map[string]any) map[string]any {
		t.Fatal("Pair must not be called for an already-trusted device")
		return nil
	})
	device.On("ValidatePair", successHandler())
	device.On("StartSession", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "SessionID": "S1"}
	})

	if _, err := lockdown.NewWithHandshake(ctx, device.Conn, store, ""); err != nil {
		t.Fatalf("NewWithHandshake: %v", err)
	}

	stored, err := store.HasDevicePublicKey(ctx, testDeviceUUID)
	if err != nil || !stored {
		t.Fatalf("device trust record missing after ValidatePair: %v", err)
	}
}

// TestLockedDevicePairingFailure is scenario 3: Pair is refused because
// the device is passcode-locked.
func TestLockedDevicePairingFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Failure", "Error": "PasswordProtected"}
	})

	_, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "")
	if err == nil {
		t.Fatal("expected PasswordProtected, got nil error")
	}
	lerr, ok := err.(*lockdown.Error)
	if !ok || lerr.Kind != lockdown.KindPasswordProtected {
		t.Fatalf("err = %v, want KindPasswordProtected", err)
	}

	trusted, err := store.HasDevicePublicKey(ctx, testDeviceUUID)
	if err != nil {
		t.Fatalf("HasDevicePublicKey: %v", err)
	}
	if trusted {
		t.Fatal("trust store was mutated despite a failed pair")
	}
}

// TestStartServiceRouting is scenario 4.
func TestStartServiceRouting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", successHandler())
	device.On("ValidatePair", successHandler())
	device.On("StartSession", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "SessionID": "S1"}
	})
	device.On("StartService", func(req map[string]any) map[string]any {
		if req["Service"] != "com.apple.afc" {
			t.Fatalf("StartService Service = %v, want com.apple.afc", req["Service"])
		}
		return map[string]any{"Result": "Success", "Port": uint64(4242)}
	})

	client, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "")
	if err != nil {
		t.Fatalf("NewWithHandshake: %v", err)
	}

	port, err := client.StartService(ctx, "com.apple.afc")
	if err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if port != 4242 {
		t.Fatalf("port = %d, want 4242", port)
	}
}

// TestStartServiceZeroPortFails is the boundary behavior: a zero port is
// StartServiceFailed.
func TestStartServiceZeroPortFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", successHandler())
	device.On("ValidatePair", successHandler())
	device.On("StartSession", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "SessionID": "S1"}
	})
	device.On("StartService", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "Port": uint64(0)}
	})

	client, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "")
	if err != nil {
		t.Fatalf("NewWithHandshake: %v", err)
	}

	_, err = client.StartService(ctx, "com.apple.afc")
	lerr, ok := err.(*lockdown.Error)
	if !ok || lerr.Kind != lockdown.KindStartServiceFailed {
		t.Fatalf("err = %v, want KindStartServiceFailed", err)
	}
}

// TestSessionRequiredOpsRejectWithoutSession is an invariant: StartService
// without an open session returns NoRunningSession and never touches the
// wire.
func TestSessionRequiredOpsRejectWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	device := testfake.New()
	defer device.Close()
	device.On("StartService", func(map[string]any) map[string]any {
		t.Fatal("StartService must not reach the device without an open session")
		return nil
	})

	client := lockdown.New(device.Conn, store)
	_, err := client.StartService(ctx, "com.apple.afc")
	if err != lockdown.ErrNoRunningSession {
		t.Fatalf("err = %v, want ErrNoRunningSession", err)
	}
	if len(device.Recorded()) != 0 {
		t.Fatal("StartService emitted bytes despite having no session")
	}
}

// TestTeardownOrdering is scenario 5: Free sends StopSession before
// Goodbye.
func TestTeardownOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.lockdown"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", successHandler())
	device.On("ValidatePair", successHandler())
	device.On("StartSession", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Success", "SessionID": "S1", "EnableSessionSSL": true}
	})
	device.On("StopSession", successHandler())
	device.On("Goodbye", successHandler())

	client, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "")
	if err != nil {
		t.Fatalf("NewWithHandshake: %v", err)
	}

	client.Free(ctx)

	recorded := device.Recorded()
	if len(recorded) < 2 {
		t.Fatalf("expected at least StopSession and Goodbye, got %d requests", len(recorded))
	}
	last2 := recorded[len(recorded)-2:]
	if last2[0]["Request"] != "StopSession" || last2[1]["Request"] != "Goodbye" {
		t.Fatalf("teardown order = %v, %v; want StopSession, Goodbye", last2[0]["Request"], last2[1]["Request"])
	}
}

// TestRecoveryModeQueryType is scenario 6: a recovery-mode device's
// QueryType type is accepted (not fatal) and pairing failure surfaces
// as PairingFailed, not a panic.
func TestRecoveryModeQueryType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pubKeyPEM := devicePublicKeyPEM(t)

	device := testfake.New()
	defer device.Close()
	device.On("QueryType", func(map[string]any) map[string]any {
		return map[string]any{"Type": "com.apple.mobile.restored"}
	})
	device.On("GetValue", getValueHandler(testDeviceUUID, pubKeyPEM))
	device.On("Pair", func(map[string]any) map[string]any {
		return map[string]any{"Result": "Failure", "Error": "SomeRecoveryModeError"}
	})

	_, err := lockdown.NewWithHandshake(ctx, device.Conn, store, "")
	if err == nil {
		t.Fatal("expected an error in recovery mode")
	}
	lerr, ok := err.(*lockdown.Error)
	if !ok || lerr.Kind != lockdown.KindPairingFailed {
		t.Fatalf("err = %v, want KindPairingFailed", err)
	}
}

