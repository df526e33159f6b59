// Copyright (C) 2026 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package signer produces and verifies the recoverable secp256k1 signatures
// carried in discovery packets.
package signer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// KeyLength is the size of a raw private key scalar.
	KeyLength = 32
	// SignatureLength is the size of the R || S part of a signature.
	SignatureLength = 64
	// HashLength is the size of the digests that get signed.
	HashLength = 32
)

var (
	ErrSigning      = errors.New("signing failed")
	ErrVerification = errors.New("signature verification failed")
)

// A Context holds the read-only curve state needed for signing and
// recovery. It is created once per process and shared.
type Context struct {
	curve elliptic.Curve
}

var (
	defaultCtx     *Context
	defaultCtxOnce sync.Once
)

// Default returns the process wide context, creating it on first use.
func Default() *Context {
	defaultCtxOnce.Do(func() {
		defaultCtx = &Context{curve: crypto.S256()}
	})
	return defaultCtx
}

// Recover returns the public key that produced the signature over hash.
func (c *Context) Recover(hash [HashLength]byte, sig [SignatureLength]byte, recid byte) (*ecdsa.PublicKey, error) {
	if recid > 3 {
		return nil, fmt.Errorf("%w: recovery id %d out of range", ErrVerification, recid)
	}
	full := make([]byte, SignatureLength+1)
	copy(full, sig[:])
	full[SignatureLength] = recid

	pub, err := crypto.SigToPub(hash[:], full)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !c.curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: recovered point is not on the curve", ErrVerification)
	}
	return pub, nil
}

// A Signature is a compact recoverable signature.
type Signature struct {
	Sig        [SignatureLength]byte // R || S
	RecoveryID byte
}

// A Signer signs hashes with one private key. It is immutable and safe for
// concurrent use.
type Signer struct {
	ctx *Context
	key *ecdsa.PrivateKey
	id  NodeID
}

// New returns a signer for the given raw 32 byte private key.
func New(ctx *Context, key []byte) (*Signer, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: private key must be %d bytes, not %d", ErrSigning, KeyLength, len(key))
	}
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return FromECDSA(ctx, priv)
}

// FromECDSA returns a signer for an already parsed private key.
func FromECDSA(ctx *Context, priv *ecdsa.PrivateKey) (*Signer, error) {
	if priv == nil || priv.Curve == nil || priv.Curve.Params().N.Cmp(ctx.curve.Params().N) != 0 {
		return nil, fmt.Errorf("%w: key is not on secp256k1", ErrSigning)
	}
	return &Signer{ctx: ctx, key: priv, id: PubkeyID(&priv.PublicKey)}, nil
}

// Sign signs a 32 byte digest. The input is never hashed again.
func (s *Signer) Sign(hash [HashLength]byte) (Signature, error) {
	bs, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	var sig Signature
	copy(sig.Sig[:], bs[:SignatureLength])
	sig.RecoveryID = bs[SignatureLength]
	return sig, nil
}

func (s *Signer) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

func (s *Signer) ID() NodeID {
	return s.id
}

func (s *Signer) Context() *Context {
	return s.ctx
}
