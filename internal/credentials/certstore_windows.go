//go:build windows

package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	crypt32 = windows.NewLazySystemDLL("crypt32.dll")

	procCertOpenSystemStoreW             = crypt32.NewProc("CertOpenSystemStoreW")
	procCertFindCertificateInStore       = crypt32.NewProc("CertFindCertificateInStore")
	procCertOpenStore                    = crypt32.NewProc("CertOpenStore")
	procCertAddCertificateContextToStore = crypt32.NewProc("CertAddCertificateContextToStore")
	procCertCloseStore                   = crypt32.NewProc("CertCloseStore")
	procPFXExportCertStoreEx             = crypt32.NewProc("PFXExportCertStoreEx")
	procCertFreeCertificateContext       = crypt32.NewProc("CertFreeCertificateContext")
)

const (
	encodingX509ASN  = 0x00000001
	encodingPKCS7ASN = 0x00010000
	findSHA1Hash     = 1 << 16
	storeProvMemory  = 2
	storeAddAlways   = 4

	exportPrivateKeys         = 0x0004
	reportNoPrivateKey        = 0x0008
	reportNotAbleToExportKeys = 0x0010
)

type cryptBlob struct {
	size uint32
	data *byte
}

// exportCertFromStore copies the certificate with the given SHA-1 thumbprint
// from CurrentUser\My into a PFX protected by a one-off random password.
// The private key must be marked exportable.
func exportCertFromStore(thumbprint string) ([]byte, string, error) {
	thumb, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(thumbprint), " ", ""))
	if err != nil || len(thumb) == 0 {
		return nil, "", fmt.Errorf("invalid thumbprint format: %q", thumbprint)
	}

	storeName, _ := windows.UTF16PtrFromString("MY")
	src, _, callErr := procCertOpenSystemStoreW.Call(0, uintptr(unsafe.Pointer(storeName)))
	if src == 0 {
		return nil, "", fmt.Errorf("failed to open CurrentUser\\My: %v", callErr)
	}
	defer procCertCloseStore.Call(src, 0)

	hash := cryptBlob{size: uint32(len(thumb)), data: &thumb[0]}
	certCtx, _, _ := procCertFindCertificateInStore.Call(
		src,
		uintptr(encodingX509ASN|encodingPKCS7ASN),
		0,
		uintptr(findSHA1Hash),
		uintptr(unsafe.Pointer(&hash)),
		0,
	)
	if certCtx == 0 {
		return nil, "", fmt.Errorf("certificate with thumbprint %s not found in CurrentUser\\My", thumbprint)
	}
	defer procCertFreeCertificateContext.Call(certCtx)

	// A memory store holding only this certificate keeps the export to one entry.
	mem, _, callErr := procCertOpenStore.Call(uintptr(storeProvMemory), 0, 0, 0, 0)
	if mem == 0 {
		return nil, "", fmt.Errorf("failed to create memory store: %v", callErr)
	}
	defer procCertCloseStore.Call(mem, 0)

	if ok, _, callErr := procCertAddCertificateContextToStore.Call(mem, certCtx, uintptr(storeAddAlways), 0); ok == 0 {
		return nil, "", fmt.Errorf("failed to add certificate to memory store: %v", callErr)
	}

	password, err := exportPassword()
	if err != nil {
		return nil, "", err
	}
	pw, _ := windows.UTF16PtrFromString(password)
	flags := uintptr(exportPrivateKeys | reportNoPrivateKey | reportNotAbleToExportKeys)

	var blob cryptBlob
	if ok, _, callErr := procPFXExportCertStoreEx.Call(mem, uintptr(unsafe.Pointer(&blob)), uintptr(unsafe.Pointer(pw)), 0, flags); ok == 0 {
		return nil, "", fmt.Errorf("failed to size PFX export (is the key exportable?): %v", callErr)
	}
	buf := make([]byte, blob.size)
	blob.data = &buf[0]
	if ok, _, callErr := procPFXExportCertStoreEx.Call(mem, uintptr(unsafe.Pointer(&blob)), uintptr(unsafe.Pointer(pw)), 0, flags); ok == 0 {
		return nil, "", fmt.Errorf("failed to export PFX: %v", callErr)
	}
	return buf, password, nil
}

func exportPassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate export password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
