package ethledger

// contractABI covers the parts of the identity contract the relay uses.
const contractABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "addr1", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "addr2", "type": "address"},
      {"indexed": false, "internalType": "enum RzRIdentities.EventType", "name": "eventType", "type": "uint8"},
      {"indexed": false, "internalType": "bytes32", "name": "data", "type": "bytes32"}
    ],
    "name": "Event",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "latestHash",
    "outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "account", "type": "address"},
      {"internalType": "address", "name": "identity", "type": "address"},
      {"internalType": "uint8", "name": "_v", "type": "uint8"},
      {"internalType": "bytes32", "name": "_r", "type": "bytes32"},
      {"internalType": "bytes32", "name": "_s", "type": "bytes32"}
    ],
    "name": "registerIdentity",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`
