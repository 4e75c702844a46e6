package cryptosession

import "testing"

func TestDerive_DirectionalKeysAlignBetweenPeers(t *testing.T) {
	client, err := NewSessionCrypto()
	if err != nil {
		t.Fatalf("NewSessionCrypto(client): %v", err)
	}
	server, err := NewSessionCrypto()
	if err != nil {
		t.Fatalf("NewSessionCrypto(server): %v", err)
	}

	if err := client.Derive(server.PublicKeyBytes(), server.LocalSalt(), false); err != nil {
		t.Fatalf("client Derive: %v", err)
	}
	if err := server.Derive(client.PublicKeyBytes(), client.LocalSalt(), true); err != nil {
		t.Fatalf("server Derive: %v", err)
	}

	if client.keyC2S != server.keyC2S {
		t.Fatal("keyC2S diverged between client and server")
	}
	if client.keyS2C != server.keyS2C {
		t.Fatal("keyS2C diverged between client and server")
	}
	if client.nonceC2S != server.nonceC2S {
		t.Fatal("nonceC2S diverged between client and server")
	}
	if client.nonceS2C != server.nonceS2C {
		t.Fatal("nonceS2C diverged between client and server")
	}
}

func TestDerive_SasAgreesBetweenPeers(t *testing.T) {
	client, _ := NewSessionCrypto()
	server, _ := NewSessionCrypto()

	if err := client.Derive(server.PublicKeyBytes(), server.LocalSalt(), false); err != nil {
		t.Fatalf("client Derive: %v", err)
	}
	if err := server.Derive(client.PublicKeyBytes(), client.LocalSalt(), true); err != nil {
		t.Fatalf("server Derive: %v", err)
	}

	if client.SasBytes() != server.SasBytes() {
		t.Fatal("SAS bytes diverged between client and server")
	}
	if client.SasTokens() != server.SasTokens() {
		t.Fatal("SAS tokens diverged between client and server")
	}
}

func TestDerive_DistinctSaltsProduceDistinctSessions(t *testing.T) {
	a1, _ := NewSessionCrypto()
	b1, _ := NewSessionCrypto()
	if err := a1.Derive(b1.PublicKeyBytes(), b1.LocalSalt(), false); err != nil {
		t.Fatalf("Derive: %v", err)
	}

	a2, _ := NewSessionCrypto()
	b2, _ := NewSessionCrypto()
	if err := a2.Derive(b2.PublicKeyBytes(), b2.LocalSalt(), false); err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if a1.SasBytes() == a2.SasBytes() {
		t.Fatal("two independent handshakes produced the same SAS")
	}
}

func TestDerive_RejectsInvalidPeerKey(t *testing.T) {
	sc, _ := NewSessionCrypto()
	err := sc.Derive([]byte{1, 2, 3}, [32]byte{}, false)
	if err == nil {
		t.Fatal("expected error for malformed peer public key")
	}
}

func TestAeadSessions_ClientSendMatchesServerReceive(t *testing.T) {
	client, _ := NewSessionCrypto()
	server, _ := NewSessionCrypto()
	if err := client.Derive(server.PublicKeyBytes(), server.LocalSalt(), false); err != nil {
		t.Fatalf("client Derive: %v", err)
	}
	if err := server.Derive(client.PublicKeyBytes(), client.LocalSalt(), true); err != nil {
		t.Fatalf("server Derive: %v", err)
	}

	clientSend, clientRecv, err := client.AeadSessions(false)
	if err != nil {
		t.Fatalf("client AeadSessions: %v", err)
	}
	serverSend, serverRecv, err := server.AeadSessions(true)
	if err != nil {
		t.Fatalf("server AeadSessions: %v", err)
	}

	ct, err := clientSend.Seal(0x03, []byte("hello from client"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := serverRecv.Open(0x03, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt) != "hello from client" {
		t.Fatalf("got %q", pt)
	}

	ct2, err := serverSend.Seal(0x04, []byte("hello from server"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt2, err := clientRecv.Open(0x04, ct2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(pt2) != "hello from server" {
		t.Fatalf("got %q", pt2)
	}
}

func TestAeadSessions_BeforeDeriveFails(t *testing.T) {
	sc, _ := NewSessionCrypto()
	if _, _, err := sc.AeadSessions(false); err == nil {
		t.Fatal("expected error calling AeadSessions before Derive")
	}
}
