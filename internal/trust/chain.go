package trust

import (
	"keytrust/internal/crypto"
	"keytrust/internal/domain"
)

// HasValidSignatureChain reports whether a chain of valid signatures leads
// from key to a trust anchor. With verifiedOnly, only directly verified
// signers terminate the walk; the local user's directly verified master key
// anchors either way. onlyValidateUserIDs, when non-empty, constrains the
// walk to those users.
func (d *Directory) HasValidSignatureChain(key Key, verifiedOnly bool, onlyValidateUserIDs []domain.UserID) bool {
	var whitelist map[domain.UserID]struct{}
	if len(onlyValidateUserIDs) > 0 {
		whitelist = make(map[domain.UserID]struct{}, len(onlyValidateUserIDs))
		for _, id := range onlyValidateUserIDs {
			whitelist[id] = struct{}{}
		}
	}
	return d.hasValidSignatureChain(key, verifiedOnly, nil, whitelist)
}

// hasValidSignatureChain walks the signature graph. visited is shared across
// the whole recursion so each (user, identifier) node expands at most once.
func (d *Directory) hasValidSignatureChain(
	key Key,
	verifiedOnly bool,
	visited map[string]struct{},
	onlyUsers map[domain.UserID]struct{},
) bool {
	if !d.encryptionEnabled {
		return false
	}
	if visited == nil {
		visited = make(map[string]struct{})
	}
	selfKey := string(key.UserID()) + ";" + key.Identifier()
	if _, seen := visited[selfKey]; seen {
		return false
	}
	if onlyUsers != nil {
		if _, ok := onlyUsers[key.UserID()]; !ok {
			return false
		}
	}
	visited[selfKey] = struct{}{}

	signatures := key.signatureMap()
	if len(signatures) == 0 {
		return false
	}
	for signerUser, perKey := range signatures {
		signerBundle, known := d.Bundle(signerUser)
		if !known {
			continue
		}
		// Only the owning user and the local user may attest a key;
		// third-party signatures never bootstrap trust.
		if signerUser != key.UserID() && signerUser != d.selfUserID {
			continue
		}
		for fullKeyID, signature := range perKey {
			algorithm, keyID, ok := domain.SplitKeyID(fullKeyID)
			if !ok || algorithm != domain.AlgorithmEd25519 {
				continue
			}
			// A signature of a key by itself carries no chain information;
			// self-signatures are the device validity rule's business.
			if signerUser == key.UserID() && keyID == key.Identifier() {
				continue
			}
			signerKey := signerBundle.GetKey(keyID)
			if signerKey == nil {
				continue
			}
			if onlyUsers != nil {
				if _, ok := onlyUsers[signerKey.UserID()]; !ok {
					continue
				}
			}
			if signerKey.Blocked() {
				continue
			}
			if !d.validSignature(key, signerKey, signerUser, fullKeyID, signature) {
				continue
			}
			if verifiedOnly && signerKey.DirectVerified() {
				return true
			}
			if cs, isCross := signerKey.(*CrossSigningKey); isCross &&
				cs.HasUsage(domain.UsageMaster) &&
				cs.DirectVerified() &&
				cs.UserID() == d.selfUserID {
				return true
			}
			if d.hasValidSignatureChain(signerKey, verifiedOnly, visited, onlyUsers) {
				return true
			}
		}
	}
	return false
}

// validSignature checks one edge of the graph, memoizing the result on the
// signed key. An unavailable verifier rejects the edge and is not memoized:
// the cache records properties of the immutable (content, key, signature)
// triple only.
func (d *Directory) validSignature(key, signerKey Key, signerUser domain.UserID, fullKeyID, signature string) bool {
	if valid, ok := key.cachedSignature(signerUser, fullKeyID); ok {
		return valid
	}
	pub, ok := signerKey.Ed25519Key()
	if !ok {
		return false
	}
	content, err := key.SigningContent()
	if err != nil {
		d.log.Debug("unsignable key content", "user", key.UserID(), "key", key.Identifier(), "err", err)
		return false
	}
	pubBytes, err := decodeBase64(pub)
	if err != nil {
		return false
	}
	sigBytes, err := decodeBase64(signature)
	if err != nil {
		return false
	}
	switch crypto.VerifyDetached(d.verifier, pubBytes, content, sigBytes) {
	case crypto.ResultValid:
		key.storeSignature(signerUser, fullKeyID, true)
		return true
	case crypto.ResultUnavailable:
		return false
	default:
		key.storeSignature(signerUser, fullKeyID, false)
		return false
	}
}
